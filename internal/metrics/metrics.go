// Package metrics exposes Prometheus instrumentation for the riddle engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lantern"

// Metrics holds the collectors used across the service. A nil *Metrics is a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	outcomes          *prometheus.CounterVec
	claimDuration     prometheus.Histogram
	claimRetries      prometheus.Counter
	engineFailures    *prometheus.CounterVec
	subscribers       prometheus.Gauge
	broadcasts        prometheus.Counter
	broadcastsDropped prometheus.Counter
}

// New registers all collectors on reg. Use prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		outcomes: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "submissions_total",
			Help:      "Submissions by business outcome",
		}, []string{"outcome"}),
		claimDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "claim_duration_seconds",
			Help:      "Latency of the atomic transition-and-record unit",
			Buckets:   prometheus.DefBuckets,
		}),
		claimRetries: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "claim_retries_total",
			Help:      "Claims retried after a storage conflict",
		}),
		engineFailures: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Infrastructure failures surfaced to callers",
		}, []string{"stage"}),
		subscribers: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently connected winner-event subscribers",
		}),
		broadcasts: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_total",
			Help:      "Winner events announced",
		}),
		broadcastsDropped: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Stale events dropped for slow subscribers",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveClaim(d time.Duration) {
	if m == nil {
		return
	}
	m.claimDuration.Observe(d.Seconds())
}

func (m *Metrics) ClaimRetried() {
	if m == nil {
		return
	}
	m.claimRetries.Inc()
}

func (m *Metrics) EngineFailure(stage string) {
	if m == nil {
		return
	}
	m.engineFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) BroadcastDropped() {
	if m == nil {
		return
	}
	m.broadcastsDropped.Inc()
}
