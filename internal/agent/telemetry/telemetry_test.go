package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammad-safakhou/aeoengine/models"
)

func TestRecordFlowAndStageEvents(t *testing.T) {
	tel := NewTelemetry(prometheus.NewRegistry())
	tel.RecordStageEvent(StageEvent{Stage: "writer", Usage: models.Usage{PromptTokens: 10, CompletionTokens: 5}, Duration: time.Second, Success: true})
	tel.RecordFlowEvent(FlowEvent{Flow: "blog", Usage: models.Usage{PromptTokens: 10, CompletionTokens: 5}, Success: true})
	tel.RecordFlowEvent(FlowEvent{Flow: "blog", Success: false})

	if got := testutil.ToFloat64(tel.stageTokens.WithLabelValues("writer", "prompt")); got != 10 {
		t.Fatalf("stage prompt tokens = %v", got)
	}
	if got := testutil.ToFloat64(tel.flowRuns.WithLabelValues("blog", "failure")); got != 1 {
		t.Fatalf("failed blog runs = %v", got)
	}
	snap := tel.Snapshot()
	if snap.Runs != 2 || snap.FailedRuns != 1 || snap.PromptTokens != 10 || snap.CompletionTokens != 5 {
		t.Fatalf("unexpected totals %+v", snap)
	}
}

func TestNewTelemetryReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewTelemetry(reg)
	b := NewTelemetry(reg)
	a.RecordKnowledgeFallback("unreachable")
	b.RecordKnowledgeFallback("unreachable")
	if got := testutil.ToFloat64(b.fallbacks.WithLabelValues("unreachable")); got != 2 {
		t.Fatalf("shared fallback counter = %v", got)
	}
	var nilTel *Telemetry
	nilTel.RecordFlowEvent(FlowEvent{Flow: "blog"})
}
