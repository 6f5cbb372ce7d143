package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/pipeline"
	"github.com/ppiankov/feedlens/internal/provider"
	"github.com/ppiankov/feedlens/internal/render"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	registerDefaults(v)
	v.SetEnvPrefix("FEEDLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper())
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	want := model.DefaultConfig()
	if cfg.Provider.Kind != want.Provider.Kind || cfg.Provider.Timeout != want.Provider.Timeout {
		t.Errorf("provider = %+v, want %+v", cfg.Provider, want.Provider)
	}
	if cfg.Cache.TTL != want.Cache.TTL || cfg.Server.Addr != want.Server.Addr {
		t.Errorf("unexpected cache/server: %+v %+v", cfg.Cache, cfg.Server)
	}
	if cfg.Pacing.Scale != 1 {
		t.Errorf("pacing scale = %v, want 1", cfg.Pacing.Scale)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("FEEDLENS_PROVIDER_KIND", "generative")
	t.Setenv("FEEDLENS_PROVIDER_TIMEOUT", "10s")
	t.Setenv("FEEDLENS_CACHE_ENABLED", "true")
	t.Setenv("FEEDLENS_RATE_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("FEEDLENS_LLM_PROVIDER", "anthropic")
	t.Setenv("FEEDLENS_LLM_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := loadConfig(newTestViper())
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Provider.Kind != "generative" {
		t.Errorf("provider kind = %q", cfg.Provider.Kind)
	}
	if cfg.Provider.Timeout != 10*time.Second {
		t.Errorf("provider timeout = %v", cfg.Provider.Timeout)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled")
	}
	if cfg.Rate.RequestsPerSecond != 2.5 {
		t.Errorf("rps = %v", cfg.Rate.RequestsPerSecond)
	}
	if cfg.LLM.APIKey != "sk-ant-test" {
		t.Errorf("api key = %q, want the ANTHROPIC_API_KEY fallback", cfg.LLM.APIKey)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `pacing:
  disabled: true
corpus:
  source: reviews.csv
cache:
  backend: layered
  ttl: 1h
concurrency:
  batch_workers: 9
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := newTestViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Pacing.Scale != 0 {
		t.Errorf("disabled pacing should zero the scale, got %v", cfg.Pacing.Scale)
	}
	if cfg.Corpus.Source != "reviews.csv" || cfg.Cache.Backend != "layered" || cfg.Cache.TTL != time.Hour {
		t.Errorf("file values not applied: corpus %+v cache %+v", cfg.Corpus, cfg.Cache)
	}
	if cfg.Concurrency.BatchWorkers != 9 {
		t.Errorf("batch workers = %d", cfg.Concurrency.BatchWorkers)
	}
	// Untouched sections keep their defaults
	if cfg.Corpus.MaxBytes != model.DefaultConfig().Corpus.MaxBytes {
		t.Errorf("max bytes = %d", cfg.Corpus.MaxBytes)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}

	v := newTestViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Timeout != model.DefaultConfig().Provider.Timeout {
		t.Errorf("round-tripped timeout = %v", cfg.Provider.Timeout)
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Why are users unhappy with offline playback?", "why-are-users-unhappy-with-offline-playback"},
		{"  What's good?!  ", "what-s-good"},
		{"???", "question"},
		{strings.Repeat("word ", 30), "word-word-word-word-word-word-word-word-word-word-word-word"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueSlug(t *testing.T) {
	used := make(map[string]int)
	if got := uniqueSlug(used, 1, "offline"); got != "001-offline" {
		t.Errorf("got %q", got)
	}
	if got := uniqueSlug(used, 1, "offline"); got != "001-offline-2" {
		t.Errorf("got %q", got)
	}
}

func TestFollowProgress(t *testing.T) {
	orch := pipeline.New(provider.NewMock(), pipeline.WithPaceScale(0))
	defer orch.Close()

	sub := orch.Subscribe()
	defer sub.Close()

	run, err := orch.Submit("offline playback", 4)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var progress bytes.Buffer
	final, err := followProgress(ctx, sub, run.Generation(), &progress)
	if err != nil {
		t.Fatalf("followProgress failed: %v", err)
	}
	if final.Phase != pipeline.PhaseSucceeded || len(final.Result.Evidence) != 4 {
		t.Errorf("final = %s with %v", final, final.Result)
	}

	out := progress.String()
	for _, s := range pipeline.Stages() {
		if !strings.Contains(out, s.Title) {
			t.Errorf("progress missing stage %q:\n%s", s.Title, out)
		}
	}
	if !strings.Contains(out, "Analysis complete") {
		t.Errorf("progress missing completion line:\n%s", out)
	}
}

func TestPrintReport(t *testing.T) {
	q := model.Query{Text: "offline", TopK: 3}
	report, err := render.NewReport(pipeline.RunState{
		Phase:      pipeline.PhaseSucceeded,
		StageIndex: -1,
		Query:      &q,
		Result: &model.AnalysisResult{
			Evidence: []model.EvidenceItem{{ID: "1", Text: "Offline broke", Rating: 1, RelevanceScore: 0.9}},
			Insight:  model.InsightReport{ExecutiveSummary: "Offline is broken."},
		},
	}, "mock")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printReport(&buf, report, "json"); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output does not decode: %v", err)
	}
	if decoded["phase"] != "succeeded" {
		t.Errorf("phase = %v", decoded["phase"])
	}

	buf.Reset()
	if err := printReport(&buf, report, "markdown"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "## Executive Summary") {
		t.Errorf("markdown output:\n%s", buf.String())
	}

	if err := printReport(&buf, report, "yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStagesCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"stages"})
	defer rootCmd.SetOut(nil)

	if err := Execute(); err != nil {
		t.Fatalf("stages: %v", err)
	}
	if !strings.Contains(out.String(), "Context Injection") {
		t.Errorf("stages output:\n%s", out.String())
	}
}

func TestAskCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")
	mdPath := filepath.Join(dir, "report.md")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ask", "Why are users unhappy with offline playback?", "--no-pace", "--provider", "mock", "--json", jsonPath, "--md", mdPath})
	defer rootCmd.SetOut(nil)

	if err := Execute(); err != nil {
		t.Fatalf("ask: %v", err)
	}

	if !strings.Contains(out.String(), "Reviews:    5") {
		t.Errorf("summary output:\n%s", out.String())
	}
	for _, p := range []string{jsonPath, mdPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("report not written: %v", err)
		}
	}
}
