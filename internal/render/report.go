// Package render turns terminal run states into tables, Markdown and JSON
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/pipeline"
)

// Report is the serialized outcome of one run
type Report struct {
	Query            string               `json:"query"`
	TopK             int                  `json:"top_k"`
	Provider         string               `json:"provider"`
	Phase            pipeline.Phase       `json:"phase"`
	Error            string               `json:"error,omitempty"`
	Generation       uint64               `json:"generation"`
	ElapsedMs        int64                `json:"elapsed_ms"`
	AverageRelevance float64              `json:"average_relevance"`
	Evidence         []model.EvidenceItem `json:"evidence,omitempty"`
	Insight          *model.InsightReport `json:"insight,omitempty"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

// NewReport builds a report from a terminal state
func NewReport(st pipeline.RunState, providerName string) (*Report, error) {
	if !st.Phase.Terminal() {
		return nil, fmt.Errorf("run is not finished (phase %s)", st.Phase)
	}

	r := &Report{
		Provider:    providerName,
		Phase:       st.Phase,
		Error:       st.Error,
		Generation:  st.Generation,
		ElapsedMs:   st.Elapsed().Milliseconds(),
		GeneratedAt: st.UpdatedAt,
	}
	if st.Query != nil {
		r.Query = st.Query.Text
		r.TopK = st.Query.TopK
	}
	if st.HasResults() {
		r.AverageRelevance = st.AverageRelevance()
		r.Evidence = st.Result.Evidence
		insight := st.Result.Insight
		r.Insight = &insight
	}
	return r, nil
}

// Percent formats a [0,1] relevance as a whole percentage
func Percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// EvidenceTable lists evidence items with relevance, rating and support
func EvidenceTable(items []model.EvidenceItem, m Mode) string {
	t := NewTable(m)
	t.Header("#", "ID", "Relevance", "Rating", "Thumbs Up", "Date", "Review")
	for i, e := range items {
		support := "-"
		if e.SupportCount != nil {
			support = fmt.Sprintf("%d", *e.SupportCount)
		}
		date := e.Date
		if date == "" {
			date = "-"
		}
		t.Row(i+1, e.ID, Percent(e.RelevanceScore), fmt.Sprintf("%d/5", e.Rating), support, date, emphasize(e.Text, e.EmphasizedSpans, m))
	}
	t.Columns(
		Column{Number: 3, Right: true},
		Column{Number: 5, Right: true},
		Column{Number: 7, MaxWidth: 72},
	)
	return t.String()
}

// StagesTable lists the stage timeline
func StagesTable(stages []model.StageDescriptor, m Mode) string {
	t := NewTable(m)
	t.Header("#", "Stage", "Title", "Detail", "Delay")
	var total time.Duration
	for _, s := range stages {
		t.Row(s.Index, s.Name, s.Title, s.Detail, s.NominalDelay)
		total += s.NominalDelay
	}
	t.Footer("", "", "", "Total", total)
	t.Columns(Column{Number: 5, Right: true})
	return t.String()
}

// emphasize marks spans in Markdown as bold; terminal tables keep plain text
func emphasize(text string, spans []string, m Mode) string {
	if m != Markdown {
		return text
	}
	for _, span := range spans {
		if span == "" {
			continue
		}
		text = strings.Replace(text, span, "**"+span+"**", 1)
	}
	return text
}

// Progress formats a staging snapshot as a one-line status
func Progress(st pipeline.RunState) string {
	stage, ok := st.Stage()
	if !ok {
		return st.String()
	}
	return fmt.Sprintf("[%d/%d] %s: %s", stage.Index+1, pipeline.StageCount, stage.Title, stage.Detail)
}

// MarkdownReport renders the full report
func MarkdownReport(r *Report) string {
	var b strings.Builder

	b.WriteString("# Feedback Analysis\n\n")
	fmt.Fprintf(&b, "**Question:** %s\n\n", r.Query)
	fmt.Fprintf(&b, "- Provider: %s\n", r.Provider)
	fmt.Fprintf(&b, "- Status: %s\n", r.Phase)
	fmt.Fprintf(&b, "- Processing time: %.1fs\n", float64(r.ElapsedMs)/1000)

	if r.Phase == pipeline.PhaseFailed {
		fmt.Fprintf(&b, "\n> Analysis failed: %s\n", r.Error)
		return b.String()
	}

	fmt.Fprintf(&b, "- Reviews analyzed: %d (top %d)\n", len(r.Evidence), r.TopK)
	fmt.Fprintf(&b, "- Average relevance: %s\n\n", Percent(r.AverageRelevance))

	if r.Insight != nil {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(r.Insight.ExecutiveSummary + "\n\n")
		writeList(&b, "Key Insights", r.Insight.KeyInsights)
		writeList(&b, "Pain Points", r.Insight.PainPoints)
		writeList(&b, "Positives", r.Insight.Positives)
		if r.Insight.Recommendation != "" {
			b.WriteString("## Recommendation\n\n")
			b.WriteString(r.Insight.Recommendation + "\n\n")
		}
	}

	b.WriteString("## Evidence\n\n")
	b.WriteString(EvidenceTable(r.Evidence, Markdown))
	b.WriteString("\n")

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// Summary prints a terminal summary of the report
func Summary(w io.Writer, r *Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  %s\n", r.Query)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	if r.Phase == pipeline.PhaseFailed {
		fmt.Fprintf(w, "  ✗ Analysis failed: %s\n\n", r.Error)
		return
	}

	fmt.Fprintf(w, "  Reviews:    %d\n", len(r.Evidence))
	fmt.Fprintf(w, "  Relevance:  %s average\n", Percent(r.AverageRelevance))
	fmt.Fprintf(w, "  Time:       %.1fs\n", float64(r.ElapsedMs)/1000)
	fmt.Fprintln(w)

	if r.Insight != nil {
		fmt.Fprintf(w, "  %s\n\n", r.Insight.ExecutiveSummary)
		printList(w, "Key insights", r.Insight.KeyInsights)
		printList(w, "Pain points", r.Insight.PainPoints)
		printList(w, "Positives", r.Insight.Positives)
		if r.Insight.Recommendation != "" {
			fmt.Fprintf(w, "  Recommendation: %s\n\n", r.Insight.Recommendation)
		}
	}

	fmt.Fprintln(w, EvidenceTable(r.Evidence, ASCII))
	fmt.Fprintln(w)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "    • %s\n", item)
	}
	fmt.Fprintln(w)
}

// WriteJSON writes the report as indented JSON
func WriteJSON(r *Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// WriteMarkdown writes the Markdown report
func WriteMarkdown(r *Report, path string) error {
	if err := os.WriteFile(path, []byte(MarkdownReport(r)), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}
