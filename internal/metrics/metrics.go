// Package metrics records pipeline health: per-stage timings and outcomes,
// retry counts, and cache effectiveness. The PrometheusRecorder is exposed
// on the serve command's /metrics endpoint; everywhere else a nil recorder
// is safe to call.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// StageOutcome labels how a stage ended.
type StageOutcome string

const (
	OutcomeOK       StageOutcome = "ok"
	OutcomeFallback StageOutcome = "fallback"
	OutcomeFatal    StageOutcome = "fatal"
)

// Recorder receives pipeline signals. Implementations must tolerate
// concurrent calls.
type Recorder interface {
	ObserveStage(stage string, outcome StageOutcome, d time.Duration)
	ObserveRun(outcome string, d time.Duration)
	IncRetry(operation string)
	CacheHit(scope string)
	CacheMiss(scope string)
}

// PrometheusRecorder implements Recorder on a Prometheus registry.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	stageOutcomes *prom.CounterVec
	runDuration   *prom.HistogramVec
	retries       *prom.CounterVec
	cacheLookups  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the pipeline metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "driftboard",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "driftboard",
			Name:      "stage_outcomes_total",
			Help:      "Stage completions by outcome (ok, fallback, fatal)",
		}, []string{"stage", "outcome"}),
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "driftboard",
			Name:      "run_duration_seconds",
			Help:      "Total dashboard generation run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "driftboard",
			Name:      "retries_total",
			Help:      "Retried operations by name",
		}, []string{"operation"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "driftboard",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by scope and hit/miss",
		}, []string{"scope", "result"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageOutcomes, pr.runDuration, pr.retries, pr.cacheLookups)
	return pr
}

func (p *PrometheusRecorder) ObserveStage(stage string, outcome StageOutcome, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	p.stageOutcomes.WithLabelValues(stage, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveRun(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRetry(operation string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(operation).Inc()
}

func (p *PrometheusRecorder) CacheHit(scope string) {
	if p == nil {
		return
	}
	p.cacheLookups.WithLabelValues(scope, "hit").Inc()
}

func (p *PrometheusRecorder) CacheMiss(scope string) {
	if p == nil {
		return
	}
	p.cacheLookups.WithLabelValues(scope, "miss").Inc()
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) ObserveStage(string, StageOutcome, time.Duration) {}
func (Nop) ObserveRun(string, time.Duration)                 {}
func (Nop) IncRetry(string)                                  {}
func (Nop) CacheHit(string)                                  {}
func (Nop) CacheMiss(string)                                 {}
