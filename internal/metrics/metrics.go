// ABOUTME: Prometheus instrumentation for the sync engine and dispatcher
// ABOUTME: All methods are nil-safe so components work without metrics configured

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "regionsync"

// Sync outcomes.
const (
	SyncApplied = "applied"
	SyncSkipped = "skipped"
	SyncFailed  = "failed"
)

// Metrics holds every collector exported by the daemon on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived      prometheus.Counter
	EventsDropped       *prometheus.CounterVec // reason
	Transitions         *prometheus.CounterVec // kind, result
	Syncs               *prometheus.CounterVec // outcome
	FetchDuration       prometheus.Histogram
	RecordsWritten      prometheus.Counter
	RegistrationsDenied prometheus.Counter
}

// New creates a Metrics with a fresh registry, including Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Platform transition events received by the dispatcher.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Platform transition events dropped before handling.",
		}, []string{"reason"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Region transitions handled, by kind and result.",
		}, []string{"kind", "result"}),
		Syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Sync engine runs by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of remote nearby-record fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records upserted into the local cache.",
		}),
		RegistrationsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_denied_total",
			Help:      "Region registrations skipped for lack of location permission.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsReceived,
		m.EventsDropped,
		m.Transitions,
		m.Syncs,
		m.FetchDuration,
		m.RecordsWritten,
		m.RegistrationsDenied,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EventReceived() {
	if m == nil {
		return
	}
	m.EventsReceived.Inc()
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) TransitionHandled(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Transitions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SyncOutcome(outcome string, records int) {
	if m == nil {
		return
	}
	m.Syncs.WithLabelValues(outcome).Inc()
	if outcome == SyncApplied {
		m.RecordsWritten.Add(float64(records))
	}
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) RegistrationDenied() {
	if m == nil {
		return
	}
	m.RegistrationsDenied.Inc()
}
