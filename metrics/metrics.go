// Package metrics exposes Prometheus instrumentation for ledger calls,
// chunk writes and execution steps. A nil *Metrics is valid and records
// nothing, so components take one optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "evmloader"

// Call outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Metrics holds the collectors of one driver instance.
type Metrics struct {
	calls        *prometheus.CounterVec
	confirmation prometheus.Histogram
	chunks       prometheus.Counter
	chunkBytes   prometheus.Counter
	steps        *prometheus.CounterVec
	runs         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Ledger transactions submitted, by outcome.",
		}, []string{"outcome"}),
		confirmation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "Time from submission to observed confirmation.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Payload chunks confirmed in a holder account.",
		}),
		chunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_written_total",
			Help:      "Payload bytes confirmed in a holder account.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_steps_total",
			Help:      "Begin and continue calls issued, by kind.",
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_runs_total",
			Help:      "Finished execution runs, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.confirmation, m.chunks, m.chunkBytes, m.steps, m.runs)
	}
	return m
}

// Call records one call outcome. d is only observed for confirmed calls.
func (m *Metrics) Call(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(outcome).Inc()
	if outcome == OutcomeConfirmed {
		m.confirmation.Observe(d.Seconds())
	}
}

// Chunk records one confirmed chunk write of n bytes.
func (m *Metrics) Chunk(n int) {
	if m == nil {
		return
	}
	m.chunks.Inc()
	m.chunkBytes.Add(float64(n))
}

// Step records one begin or continue call.
func (m *Metrics) Step(kind string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(kind).Inc()
}

// Run records the end of an execution run.
func (m *Metrics) Run(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}
