// Package metrics exposes ledger and event-intake Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"storefront-wallet/internal/wallet"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront_wallet"

// Metrics implements wallet.Observer and the event adapter's observer.
type Metrics struct {
	registry *prometheus.Registry

	mutations       *prometheus.CounterVec
	mutationLatency *prometheus.HistogramVec
	roleAssignments *prometheus.CounterVec
	events          *prometheus.CounterVec
	eventRetries    *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Ledger credit/debit calls by kind, direction, source and outcome.",
		}, []string{"kind", "direction", "source", "outcome"}),
		mutationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Latency of ledger mutations including the store round trip.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction", "outcome"}),
		roleAssignments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_assignments_total",
			Help:      "Marketing role assignment attempts by requested role and outcome.",
		}, []string{"role", "outcome"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Ledger-affecting events by type and outcome.",
		}, []string{"type", "outcome"}),
		eventRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_retries_total",
			Help:      "Event dispatch retries after a transient store failure.",
		}, []string{"type"}),
	}
}

func (m *Metrics) ObserveMutation(kind wallet.Kind, dir wallet.Direction, source, outcome string, elapsed time.Duration) {
	m.mutations.WithLabelValues(string(kind), string(dir), source, outcome).Inc()
	m.mutationLatency.WithLabelValues(string(dir), outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRoleAssignment(role wallet.MarketingRole, outcome string) {
	m.roleAssignments.WithLabelValues(string(role), outcome).Inc()
}

func (m *Metrics) ObserveEvent(eventType, outcome string) {
	m.events.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveEventRetry(eventType string) {
	m.eventRetries.WithLabelValues(eventType).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
