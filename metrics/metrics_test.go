package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Call(OutcomeConfirmed, 2*time.Second)
	m.Call(OutcomeConfirmed, time.Second)
	m.Call(OutcomeTimeout, 30*time.Second)
	m.Chunk(1000)
	m.Chunk(500)
	m.Step("begin")
	m.Step("continue")
	m.Step("continue")
	m.Run("completed")

	if got := testutil.ToFloat64(m.calls.WithLabelValues(OutcomeConfirmed)); got != 2 {
		t.Fatalf("confirmed calls: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues(OutcomeTimeout)); got != 1 {
		t.Fatalf("timeout calls: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.chunkBytes); got != 1500 {
		t.Fatalf("chunk bytes: got %v, want 1500", got)
	}
	if got := testutil.ToFloat64(m.steps.WithLabelValues("continue")); got != 2 {
		t.Fatalf("continue steps: got %v, want 2", got)
	}
	if n, err := testutil.GatherAndCount(reg, "evmloader_confirmation_seconds"); err != nil || n != 1 {
		t.Fatalf("confirmation histogram: n=%d err=%v", n, err)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Call(OutcomeError, 0)
	m.Chunk(1)
	m.Step("begin")
	m.Run("failed")
}
