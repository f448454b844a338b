// Package vmmetrics exposes Prometheus instrumentation for the invocation
// VM: how many invocations ran, how their journal entries split between
// replayed and freshly emitted, and how often they ended in suspension
// versus completion.
package vmmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for one VM instance.
type Metrics struct {
	registry *prometheus.Registry

	invocationsTotal  *prometheus.CounterVec
	entriesTotal      *prometheus.CounterVec
	invocationLatency *prometheus.HistogramVec
	journalSize       prometheus.Histogram
	activeInvocations prometheus.Gauge
}

var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var m *Metrics

// Init initializes the package-level metrics singleton. Safe to call more
// than once; the last call wins.
func Init(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultLatencyBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	inst := &Metrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of invocations processed, by outcome",
			},
			[]string{"outcome"}, // ended, suspended, error
		),

		entriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_entries_total",
				Help:      "Total journal entries produced, by source and kind",
			},
			[]string{"source", "kind"}, // source: replay|live
		),

		invocationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Wall-clock duration of an invocation attempt in milliseconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),

		journalSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "journal_final_size",
				Help:      "Number of post-input journal entries at invocation close",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		activeInvocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_invocations",
				Help:      "Number of invocations currently in ReplayingPrefix or LiveExecution",
			},
		),
	}

	registry.MustRegister(
		inst.invocationsTotal,
		inst.entriesTotal,
		inst.invocationLatency,
		inst.journalSize,
		inst.activeInvocations,
	)

	m = inst
}

// RecordInvocation records the terminal outcome and duration of one
// invocation attempt.
func RecordInvocation(outcome string, durationMs float64, finalJournalSize int) {
	if m == nil {
		return
	}
	m.invocationsTotal.WithLabelValues(outcome).Inc()
	m.invocationLatency.WithLabelValues(outcome).Observe(durationMs)
	m.journalSize.Observe(float64(finalJournalSize))
}

// RecordEntry records one journal entry, tagged by whether it was served
// from the replay prefix or freshly appended live.
func RecordEntry(source, kind string) {
	if m == nil {
		return
	}
	m.entriesTotal.WithLabelValues(source, kind).Inc()
}

// IncActiveInvocations increments the in-flight invocation gauge.
func IncActiveInvocations() {
	if m == nil {
		return
	}
	m.activeInvocations.Inc()
}

// DecActiveInvocations decrements the in-flight invocation gauge.
func DecActiveInvocations() {
	if m == nil {
		return
	}
	m.activeInvocations.Dec()
}

// Handler returns an HTTP handler for Prometheus scraping.
func Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("vmmetrics not initialized"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry, for wiring
// additional collectors.
func Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
