package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/feedlens/internal/pipeline"
)

// OrchestratorFactory builds a fresh orchestrator for one batch query
type OrchestratorFactory func() *pipeline.Orchestrator

// QueryJob runs one query to completion on its own orchestrator
type QueryJob struct {
	Text    string
	TopK    int
	Factory OrchestratorFactory
}

// Execute submits the query and waits for its terminal state
func (j *QueryJob) Execute(ctx context.Context) Result {
	res := &QueryResult{Text: j.Text}

	o := j.Factory()
	defer o.Close()

	run, err := o.Submit(j.Text, j.TopK)
	if err != nil {
		res.Error = err
		return res
	}

	final, err := run.Wait(ctx)
	if err != nil {
		res.Error = err
		return res
	}

	res.State = final
	if final.Phase == pipeline.PhaseFailed {
		res.Error = fmt.Errorf("%s", final.Error)
	}
	return res
}

// QueryResult is the outcome of one batch query
type QueryResult struct {
	Text  string
	State pipeline.RunState
	Error error
}

// GetError returns the query failure, if any
func (r *QueryResult) GetError() error {
	return r.Error
}

// Elapsed returns how long the run took
func (r *QueryResult) Elapsed() time.Duration {
	return r.State.Elapsed()
}

// BatchProcessor answers many queries concurrently
type BatchProcessor struct {
	factory OrchestratorFactory
	pool    *Pool
	topK    int
}

// NewBatchProcessor creates a processor running up to concurrency queries at once
func NewBatchProcessor(factory OrchestratorFactory, concurrency, topK int) *BatchProcessor {
	return &BatchProcessor{
		factory: factory,
		pool:    NewPool(concurrency),
		topK:    topK,
	}
}

// ProcessQueries answers queries and returns results in input order.
// Queries not started before ctx ended report ctx's error.
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string) []*QueryResult {
	jobs := make([]Job, len(queries))
	for i, q := range queries {
		jobs[i] = &QueryJob{Text: q, TopK: b.topK, Factory: b.factory}
	}

	results, runErr := b.pool.Run(ctx, jobs)

	out := make([]*QueryResult, len(results))
	for i, r := range results {
		if r == nil {
			out[i] = &QueryResult{Text: queries[i], Error: runErr}
			continue
		}
		out[i] = r.(*QueryResult)
	}
	return out
}

// ProcessFile reads queries from a file and answers them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*QueryResult, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	return b.ProcessQueries(ctx, queries), nil
}

// ReadQueriesFromFile reads one query per line, skipping blanks, comments
// and duplicates
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return queries, nil
}
