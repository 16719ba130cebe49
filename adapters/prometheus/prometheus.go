// Package prometheus provides a Prometheus implementation of the
// textstore.StoreMetrics interface, plus an HTTP handler for scraping.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/textstore"
)

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// storeMetrics implements textstore.StoreMetrics using Prometheus.
type storeMetrics struct {
	// Buffer lifecycle
	buffers        prometheus.Gauge
	buffersCreated prometheus.Counter
	buffersRemoved prometheus.Counter

	// Edit path
	editDuration  *prometheus.HistogramVec
	editsApplied  *prometheus.CounterVec
	editsRejected *prometheus.CounterVec

	// Lock gate
	lockWaitDuration *prometheus.HistogramVec
	lockTimeouts     *prometheus.CounterVec

	// Event fan-out
	eventsEnqueued prometheus.Counter
	eventsDropped  prometheus.Counter
}

// NewStoreMetrics creates a Prometheus implementation of StoreMetrics
// and registers its collectors on reg.
func NewStoreMetrics(reg prometheus.Registerer) textstore.StoreMetrics {
	m := &storeMetrics{
		buffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "textstore_buffers",
			Help: "Current number of live buffers",
		}),

		buffersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textstore_buffers_created_total",
			Help: "Total number of buffers created",
		}),

		buffersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textstore_buffers_removed_total",
			Help: "Total number of buffers removed",
		}),

		editDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "textstore_edit_duration_seconds",
			Help:    "Edit apply latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"kind"}),

		editsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textstore_edits_applied_total",
			Help: "Total number of successful edits",
		}, []string{"kind"}),

		editsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textstore_edits_rejected_total",
			Help: "Total number of edits rejected by validation",
		}, []string{"kind"}),

		lockWaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "textstore_lock_wait_duration_seconds",
			Help:    "Lock acquisition wait time in seconds",
			Buckets: defaultBuckets,
		}, []string{"mode"}),

		lockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "textstore_lock_timeouts_total",
			Help: "Total number of lock acquisitions that timed out",
		}, []string{"mode"}),

		eventsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textstore_events_enqueued_total",
			Help: "Total number of change events enqueued to subscribers",
		}),

		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "textstore_events_dropped_total",
			Help: "Total number of change events dropped from full queues",
		}),
	}

	reg.MustRegister(
		m.buffers,
		m.buffersCreated,
		m.buffersRemoved,
		m.editDuration,
		m.editsApplied,
		m.editsRejected,
		m.lockWaitDuration,
		m.lockTimeouts,
		m.eventsEnqueued,
		m.eventsDropped,
	)

	return m
}

func (m *storeMetrics) BufferCreated() {
	m.buffersCreated.Inc()
	m.buffers.Inc()
}

func (m *storeMetrics) BufferRemoved() {
	m.buffersRemoved.Inc()
	m.buffers.Dec()
}

func (m *storeMetrics) EditApplied(kind string, dur time.Duration) {
	m.editsApplied.WithLabelValues(kind).Inc()
	m.editDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

func (m *storeMetrics) EditRejected(kind string) {
	m.editsRejected.WithLabelValues(kind).Inc()
}

func (m *storeMetrics) LockWait(mode string, dur time.Duration) {
	m.lockWaitDuration.WithLabelValues(mode).Observe(dur.Seconds())
}

func (m *storeMetrics) LockTimeout(mode string) {
	m.lockTimeouts.WithLabelValues(mode).Inc()
}

func (m *storeMetrics) EventsPublished(enqueued, dropped int) {
	if enqueued > 0 {
		m.eventsEnqueued.Add(float64(enqueued))
	}
	if dropped > 0 {
		m.eventsDropped.Add(float64(dropped))
	}
}

var _ textstore.StoreMetrics = (*storeMetrics)(nil)

// Handler returns an HTTP handler serving the gathered metrics, for
// mounting at /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
