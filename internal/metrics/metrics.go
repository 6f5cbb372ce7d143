// Package metrics exports orchestrator and HTTP activity as prometheus metrics
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/feedlens/internal/model"
	"github.com/ppiankov/feedlens/internal/pipeline"
	"github.com/ppiankov/feedlens/internal/provider"
)

// Recorder implements pipeline.Recorder on its own registry
type Recorder struct {
	registry *prometheus.Registry

	runsStarted     *prometheus.CounterVec
	runsFinished    *prometheus.CounterVec
	runsSuperseded  prometheus.Counter
	runDuration     *prometheus.HistogramVec
	stagesEntered   *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var _ pipeline.Recorder = (*Recorder)(nil)

// New creates a recorder with all collectors registered
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedlens_runs_started_total",
				Help: "Total number of analysis runs started",
			},
			[]string{"provider"},
		),
		runsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedlens_runs_finished_total",
				Help: "Total number of analysis runs that reached a terminal state",
			},
			[]string{"phase"},
		),
		runsSuperseded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feedlens_runs_superseded_total",
				Help: "Total number of runs abandoned by a newer submission or reset",
			},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedlens_run_duration_seconds",
				Help:    "Duration of analysis runs from submission to terminal state",
				Buckets: []float64{0.5, 1, 2, 4, 6, 8, 12, 20, 40},
			},
			[]string{"phase"},
		),
		stagesEntered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedlens_stages_entered_total",
				Help: "Total number of stage transitions",
			},
			[]string{"stage"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedlens_provider_calls_total",
				Help: "Total number of result provider calls",
			},
			[]string{"provider", "op", "status"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "feedlens_provider_call_duration_seconds",
				Help: "Duration of result provider calls",
			},
			[]string{"provider", "op"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedlens_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "feedlens_http_request_duration_seconds",
				Help: "Duration of HTTP API requests",
			},
			[]string{"method", "route"},
		),
	}

	r.registry.MustRegister(
		r.runsStarted,
		r.runsFinished,
		r.runsSuperseded,
		r.runDuration,
		r.stagesEntered,
		r.providerCalls,
		r.providerLatency,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RunStarted(providerName string) {
	r.runsStarted.WithLabelValues(providerName).Inc()
}

func (r *Recorder) StageEntered(stage model.StageDescriptor) {
	r.stagesEntered.WithLabelValues(stage.Name).Inc()
}

func (r *Recorder) RunFinished(phase pipeline.Phase, elapsed time.Duration) {
	r.runsFinished.WithLabelValues(phase.String()).Inc()
	r.runDuration.WithLabelValues(phase.String()).Observe(elapsed.Seconds())
}

func (r *Recorder) RunSuperseded() {
	r.runsSuperseded.Inc()
}

func (r *Recorder) ProviderCall(providerName, op string, elapsed time.Duration, err error) {
	r.providerCalls.WithLabelValues(providerName, op, callStatus(err)).Inc()
	r.providerLatency.WithLabelValues(providerName, op).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request
func (r *Recorder) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// callStatus labels a provider outcome: ok, the provider error kind, or error
func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := provider.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
