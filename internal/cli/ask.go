package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/pipeline"
	"github.com/ppiankov/feedlens/internal/render"
)

var (
	topK         int
	outJSON      string
	outMD        string
	providerKind string
	paceScale    float64
	noPace       bool
	askTimeout   time.Duration
	corpusSource string
	noCache      bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about customer feedback",
	Long: `Ask runs one question through the five analysis stages and prints:
- The most relevant reviews with relevance, rating and thumbs-up counts
- An executive summary with key insights, pain points and positives
- A recommendation

Example:
  feedlens ask "Why are users unhappy with offline playback?"
  feedlens ask "What do users like?" --top-k 3 --md report.md
  feedlens ask "How can we improve downloads?" --provider generative --corpus reviews.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	// Query flags
	askCmd.Flags().IntVarP(&topK, "top-k", "k", model.DefaultTopK, "number of reviews to return (3-10)")

	// Output flags
	askCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	askCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")

	addRunFlags(askCmd)
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "overall timeout for the question")
}

// addRunFlags registers the provider and pacing overrides shared by commands
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&providerKind, "provider", "", "result provider (mock, generative)")
	cmd.Flags().StringVar(&corpusSource, "corpus", "", "review corpus for the generative provider (path or URL)")
	cmd.Flags().Float64Var(&paceScale, "pace", 1.0, "stage pacing multiplier")
	cmd.Flags().BoolVar(&noPace, "no-pace", false, "disable stage pacing")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the result cache")
}

// commandConfig loads configuration and applies the flags set on cmd
func commandConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider.Kind = providerKind
	}
	if flags.Changed("corpus") {
		cfg.Corpus.Source = corpusSource
	}
	if flags.Changed("pace") {
		cfg.Pacing.Scale = paceScale
	}
	if noPace {
		cfg.Pacing.Scale = 0
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	return cfg, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orch := a.orchestrator()
	defer orch.Close()

	sub := orch.Subscribe()
	defer sub.Close()

	run, err := orch.Submit(question, topK)
	if err != nil {
		return err
	}

	final, err := followProgress(ctx, sub, run.Generation(), os.Stderr)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	report, err := render.NewReport(final, orch.ProviderName())
	if err != nil {
		return err
	}

	if err := printReport(cmd.OutOrStdout(), report, cfg.Output.Format); err != nil {
		return err
	}

	if outJSON != "" {
		if err := render.WriteJSON(report, outJSON); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", outJSON)
		}
	}
	if outMD != "" {
		if err := render.WriteMarkdown(report, outMD); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", outMD)
		}
	}

	if final.Phase == pipeline.PhaseFailed {
		return fmt.Errorf("analysis failed: %s", final.Error)
	}
	return nil
}

// followProgress prints each stage of run gen to w and returns its terminal state
func followProgress(ctx context.Context, sub *pipeline.Subscription, gen uint64, w io.Writer) (pipeline.RunState, error) {
	for {
		select {
		case <-ctx.Done():
			return pipeline.RunState{}, ctx.Err()
		case st, ok := <-sub.C():
			if !ok {
				return pipeline.RunState{}, fmt.Errorf("orchestrator closed")
			}
			if st.Generation < gen {
				continue
			}
			if st.Generation > gen {
				return pipeline.RunState{}, pipeline.ErrRunSuperseded
			}
			switch st.Phase {
			case pipeline.PhaseStaging:
				fmt.Fprintf(w, "⚙️  %s\n", render.Progress(st))
			case pipeline.PhaseSucceeded:
				fmt.Fprintf(w, "✓ Analysis complete (%.1fs)\n", st.Elapsed().Seconds())
				return st, nil
			case pipeline.PhaseFailed:
				fmt.Fprintf(w, "✗ Analysis failed\n")
				return st, nil
			}
		}
	}
}

// printReport writes the report in the configured output format
func printReport(w io.Writer, report *render.Report, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	case "markdown", "md":
		fmt.Fprint(w, render.MarkdownReport(report))
	case "", "text":
		render.Summary(w, report)
	default:
		return fmt.Errorf("unknown output format: %s (supported: text, markdown, json)", format)
	}
	return nil
}
