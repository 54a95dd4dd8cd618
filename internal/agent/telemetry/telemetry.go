// Package telemetry records generation usage as Prometheus metrics.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/aeoengine/models"
)

// Telemetry aggregates stage and flow usage.
type Telemetry struct {
	stageRuns     *prometheus.CounterVec
	stageTokens   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	flowRuns      *prometheus.CounterVec
	flowTokens    *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec

	mu     sync.Mutex
	totals Totals
}

// Totals is the process-lifetime token usage.
type Totals struct {
	Runs             int64
	FailedRuns       int64
	PromptTokens     int64
	CompletionTokens int64
}

// StageEvent is one stage invocation.
type StageEvent struct {
	Stage    string
	Usage    models.Usage
	Duration time.Duration
	Success  bool
}

// FlowEvent is one completed or failed flow run.
type FlowEvent struct {
	Flow     string // blog or social:<platform>
	Usage    models.Usage
	Duration time.Duration
	Success  bool
}

// NewTelemetry registers collectors on reg. A nil reg uses the default registerer.
func NewTelemetry(reg prometheus.Registerer) *Telemetry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	t := &Telemetry{
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeo", Name: "stage_runs_total", Help: "Stage invocations by outcome.",
		}, []string{"stage", "outcome"}),
		stageTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeo", Name: "stage_tokens_total", Help: "Tokens consumed per stage.",
		}, []string{"stage", "kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aeo", Name: "stage_duration_seconds", Help: "Stage latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90, 180},
		}, []string{"stage"}),
		flowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeo", Name: "flow_runs_total", Help: "Pipeline runs by flow and outcome.",
		}, []string{"flow", "outcome"}),
		flowTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeo", Name: "flow_tokens_total", Help: "Aggregate tokens per flow.",
		}, []string{"flow", "kind"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeo", Name: "knowledge_fallback_total", Help: "Knowledge queries served by the local index.",
		}, []string{"reason"}),
	}
	for _, c := range []prometheus.Collector{t.stageRuns, t.stageTokens, t.stageDuration, t.flowRuns, t.flowTokens, t.fallbacks} {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				adoptExisting(t, c, are.ExistingCollector)
				continue
			}
			panic(err)
		}
	}
	return t
}

// adoptExisting reuses collectors already registered by an earlier instance.
func adoptExisting(t *Telemetry, mine, existing prometheus.Collector) {
	switch mine {
	case t.stageRuns:
		t.stageRuns = existing.(*prometheus.CounterVec)
	case t.stageTokens:
		t.stageTokens = existing.(*prometheus.CounterVec)
	case t.stageDuration:
		t.stageDuration = existing.(*prometheus.HistogramVec)
	case t.flowRuns:
		t.flowRuns = existing.(*prometheus.CounterVec)
	case t.flowTokens:
		t.flowTokens = existing.(*prometheus.CounterVec)
	case t.fallbacks:
		t.fallbacks = existing.(*prometheus.CounterVec)
	}
}

// RecordStageEvent records one stage invocation.
func (t *Telemetry) RecordStageEvent(e StageEvent) {
	if t == nil {
		return
	}
	t.stageRuns.WithLabelValues(e.Stage, outcome(e.Success)).Inc()
	t.stageTokens.WithLabelValues(e.Stage, "prompt").Add(float64(e.Usage.PromptTokens))
	t.stageTokens.WithLabelValues(e.Stage, "completion").Add(float64(e.Usage.CompletionTokens))
	t.stageDuration.WithLabelValues(e.Stage).Observe(e.Duration.Seconds())
}

// RecordFlowEvent records the aggregate usage of a run.
func (t *Telemetry) RecordFlowEvent(e FlowEvent) {
	if t == nil {
		return
	}
	t.flowRuns.WithLabelValues(e.Flow, outcome(e.Success)).Inc()
	t.flowTokens.WithLabelValues(e.Flow, "prompt").Add(float64(e.Usage.PromptTokens))
	t.flowTokens.WithLabelValues(e.Flow, "completion").Add(float64(e.Usage.CompletionTokens))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.Runs++
	if !e.Success {
		t.totals.FailedRuns++
	}
	t.totals.PromptTokens += e.Usage.PromptTokens
	t.totals.CompletionTokens += e.Usage.CompletionTokens
}

// RecordKnowledgeFallback counts a query answered by the local index.
func (t *Telemetry) RecordKnowledgeFallback(reason string) {
	if t == nil {
		return
	}
	t.fallbacks.WithLabelValues(reason).Inc()
}

// Snapshot returns the running totals.
func (t *Telemetry) Snapshot() Totals {
	if t == nil {
		return Totals{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
