package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/provider"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("orchestrator closed")

// ErrRunSuperseded is returned by Run.Wait when a newer submission or a reset
// replaced the run before it finished. It never appears in RunState.
var ErrRunSuperseded = errors.New("run superseded")

// errSuperseded unwinds a stale run without publishing anything
var errSuperseded = errors.New("superseded")

// Recorder receives lifecycle events for metrics
type Recorder interface {
	RunStarted(provider string)
	StageEntered(stage model.StageDescriptor)
	RunFinished(phase Phase, elapsed time.Duration)
	RunSuperseded()
	ProviderCall(provider, op string, elapsed time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) RunStarted(string)                                 {}
func (noopRecorder) StageEntered(model.StageDescriptor)                {}
func (noopRecorder) RunFinished(Phase, time.Duration)                  {}
func (noopRecorder) RunSuperseded()                                    {}
func (noopRecorder) ProviderCall(string, string, time.Duration, error) {}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithPaceScale multiplies every nominal stage delay; 0 disables pacing
func WithPaceScale(scale float64) Option {
	return func(o *Orchestrator) {
		if scale < 0 {
			scale = 0
		}
		o.paceScale = scale
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Orchestrator owns the run lifecycle: it sequences the five stages, calls the
// provider and publishes every transition to subscribers. It is the single
// writer of RunState; only the most recently submitted run may publish.
type Orchestrator struct {
	provider  provider.ResultProvider
	clock     Clock
	paceScale float64
	log       *slog.Logger
	recorder  Recorder

	mu     sync.Mutex
	state  RunState
	gen    uint64
	cancel context.CancelFunc
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates an idle orchestrator around p
func New(p provider.ResultProvider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:  p,
		clock:     RealClock{},
		paceScale: 1,
		log:       slog.Default().With("component", "orchestrator"),
		recorder:  noopRecorder{},
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.state = idleState(0, o.clock.Now())
	return o
}

// ProviderName returns the name of the wrapped provider
func (o *Orchestrator) ProviderName() string {
	return o.provider.Name()
}

// State returns the current snapshot
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers an observer. The current snapshot is delivered first,
// followed by every later publication in order.
// After Close the subscription carries the final snapshot and is already
// closed.
func (o *Orchestrator) Subscribe() *Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return closedSubscription(o.state)
	}
	sub := newSubscription(o.unsubscribe)
	o.subs[sub] = struct{}{}
	sub.push(o.state)
	return sub
}

func (o *Orchestrator) unsubscribe(sub *Subscription) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.subs, sub)
}

// Submit validates the query and starts a new run, superseding any run in
// flight. It returns as soon as Staging(0) is published.
func (o *Orchestrator) Submit(text string, topK int) (*Run, error) {
	q, err := model.NewQuery(text, topK)
	if err != nil {
		o.log.Debug("submission rejected", "error", err)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	gen := o.gen
	o.cancel = cancel
	now := o.clock.Now()
	o.publishLocked(RunState{
		Phase:      PhaseStaging,
		StageIndex: StageIngestion,
		Query:      &q,
		Generation: gen,
		StartedAt:  now,
		UpdatedAt:  now,
	})
	o.mu.Unlock()

	o.log.Info("run started", "generation", gen, "top_k", q.TopK, "provider", o.provider.Name())
	o.recorder.RunStarted(o.provider.Name())
	o.recorder.StageEntered(timeline[StageIngestion])

	run := &Run{generation: gen, done: make(chan struct{})}
	go o.drive(ctx, cancel, run, q)
	return run, nil
}

// Reset returns to Idle, abandoning any run in flight. Resetting an idle
// orchestrator publishes nothing.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	if o.state.Phase == PhaseIdle && o.cancel == nil {
		return
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	o.publishLocked(idleState(o.gen, o.clock.Now()))
	o.log.Info("reset", "generation", o.gen)
}

// Close resets the orchestrator, closes every subscription and rejects
// further submissions
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.resetLocked()
	o.closed = true
	subs := make([]*Subscription, 0, len(o.subs))
	for sub := range o.subs {
		subs = append(subs, sub)
	}
	o.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (o *Orchestrator) publishLocked(s RunState) {
	o.state = s
	for sub := range o.subs {
		sub.push(s)
	}
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

// advance publishes Staging(stage) if gen is still the current run
func (o *Orchestrator) advance(gen uint64, stage int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return false
	}
	next := o.state
	next.StageIndex = stage
	next.UpdatedAt = o.clock.Now()
	o.publishLocked(next)
	return true
}

func (o *Orchestrator) drive(ctx context.Context, cancel context.CancelFunc, run *Run, q model.Query) {
	defer close(run.done)
	defer cancel()

	result, err := o.execute(ctx, run.generation, q)
	final, ok := o.finish(run.generation, q, result, err)
	if !ok {
		o.log.Debug("stale run abandoned", "generation", run.generation)
		o.recorder.RunSuperseded()
		run.superseded = true
		return
	}
	run.final = final
	o.recorder.RunFinished(final.Phase, final.Elapsed())
	if final.Phase == PhaseFailed {
		o.log.Warn("run failed", "generation", run.generation, "reason", final.Error)
	} else {
		o.log.Info("run succeeded", "generation", run.generation,
			"evidence", len(final.Result.Evidence), "elapsed", final.Elapsed())
	}
}

func (o *Orchestrator) execute(ctx context.Context, gen uint64, q model.Query) (*model.AnalysisResult, error) {
	inc, incremental := o.provider.(provider.Incremental)

	var evidence []model.EvidenceItem
	var insight *model.InsightReport

	// A failed unit of work does not cut the timeline short: later stages
	// are still paced and published, then the run fails.
	var workErr error

	for i := 0; i < StageCount; i++ {
		stage := timeline[i]
		if i > 0 {
			if !o.advance(gen, i) {
				return nil, errSuperseded
			}
			o.recorder.StageEntered(stage)
		}

		var work func(context.Context) error
		switch {
		case workErr != nil:
		case incremental && i == StageRetrieval:
			work = func(ctx context.Context) error {
				items, err := callProvider(o, "retrieve", func() ([]model.EvidenceItem, error) {
					return inc.Retrieve(ctx, q)
				})
				evidence = items
				return err
			}
		case incremental && i == StageSynthesis:
			work = func(ctx context.Context) error {
				report, err := callProvider(o, "synthesize", func() (*model.InsightReport, error) {
					return inc.Synthesize(ctx, q, evidence)
				})
				insight = report
				return err
			}
		}

		if err := o.runStage(ctx, stage, work); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			o.log.Debug("stage work failed", "generation", gen, "stage", stage.Name, "error", err)
			workErr = err
		}
		if !o.isCurrent(gen) {
			return nil, errSuperseded
		}
	}

	if workErr != nil {
		return nil, workErr
	}
	if incremental {
		return provider.Assemble(q, evidence, insight)
	}
	return callProvider(o, "resolve", func() (*model.AnalysisResult, error) {
		return o.provider.Resolve(ctx, q)
	})
}

// runStage waits for the paced interval and, when present, the stage's unit
// of real work. The stage ends when both are done, even if the work fails
// early.
func (o *Orchestrator) runStage(ctx context.Context, stage model.StageDescriptor, work func(context.Context) error) error {
	delay := time.Duration(float64(stage.NominalDelay) * o.paceScale)
	if work == nil {
		return o.clock.Sleep(ctx, delay)
	}

	var g errgroup.Group
	g.Go(func() error {
		return o.clock.Sleep(ctx, delay)
	})
	g.Go(func() error {
		return work(ctx)
	})
	return g.Wait()
}

// callProvider times a provider call and converts panics into errors
func callProvider[T any](o *Orchestrator, op string, fn func() (T, error)) (out T, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = provider.Upstream(o.provider.Name(), fmt.Errorf("panic in %s: %v", op, r))
		}
		o.recorder.ProviderCall(o.provider.Name(), op, time.Since(start), err)
	}()
	return fn()
}

// finish publishes the terminal state. It returns false when gen is stale.
func (o *Orchestrator) finish(gen uint64, q model.Query, result *model.AnalysisResult, runErr error) (RunState, bool) {
	if runErr == nil {
		result, runErr = o.normalize(q, result)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen || errors.Is(runErr, errSuperseded) {
		return RunState{}, false
	}

	next := o.state
	next.StageIndex = -1
	next.UpdatedAt = o.clock.Now()
	if runErr != nil {
		next.Phase = PhaseFailed
		next.Error = failureReason(runErr)
		next.Result = nil
	} else {
		next.Phase = PhaseSucceeded
		next.Error = ""
		next.Result = result
	}
	o.cancel = nil
	o.publishLocked(next)
	return next, true
}

// normalize sorts and trims the provider output, then checks the shape contract
func (o *Orchestrator) normalize(q model.Query, result *model.AnalysisResult) (*model.AnalysisResult, error) {
	if result == nil {
		return nil, provider.Upstream(o.provider.Name(), errors.New("provider returned no result"))
	}
	out := result.Clone()
	model.SortEvidence(out.Evidence)
	if len(out.Evidence) > q.TopK {
		o.log.Warn("provider exceeded top_k, truncating", "got", len(out.Evidence), "top_k", q.TopK)
		out.Evidence = out.Evidence[:q.TopK]
	}
	if err := out.Validate(q.TopK); err != nil {
		return nil, fmt.Errorf("invalid provider result: %w", err)
	}
	return out, nil
}

func failureReason(err error) string {
	var perr *provider.Error
	switch {
	case errors.As(err, &perr):
		return perr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout: " + err.Error()
	default:
		return "analysis failed: " + err.Error()
	}
}

// Run is a handle on one submission
type Run struct {
	generation uint64
	done       chan struct{}

	// written before done is closed
	final      RunState
	superseded bool
}

// Generation identifies the run; it matches RunState.Generation
func (r *Run) Generation() uint64 {
	return r.generation
}

// Done is closed once the run published its terminal state or was abandoned
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run ends and returns its terminal state
func (r *Run) Wait(ctx context.Context) (RunState, error) {
	select {
	case <-ctx.Done():
		return RunState{}, ctx.Err()
	case <-r.done:
	}
	if r.superseded {
		return RunState{}, ErrRunSuperseded
	}
	return r.final, nil
}
