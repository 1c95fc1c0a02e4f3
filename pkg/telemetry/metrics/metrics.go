// Package metrics defines the Prometheus collectors for the case engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the engine and the API server record.
// Constructed once at startup and injected; no package-level state.
type Metrics struct {
	registry *prometheus.Registry

	// CaseTransitions counts case status transitions by target status.
	CaseTransitions *prometheus.CounterVec

	// CommitteeVotes counts provider votes by provider and validity.
	CommitteeVotes *prometheus.CounterVec

	// ProviderLatency observes committee provider review latency.
	ProviderLatency *prometheus.HistogramVec

	// SubmitAttempts counts external submission attempts by outcome.
	SubmitAttempts *prometheus.CounterVec

	// RetryQueueDepth gauges the pending retry items.
	RetryQueueDepth prometheus.Gauge

	// OutboxPending gauges the undelivered outbox entries.
	OutboxPending prometheus.Gauge

	// CatalogCacheLookups counts resolver cache lookups by result.
	CatalogCacheLookups *prometheus.CounterVec

	// HTTPRequests counts API requests by route, method and status.
	HTTPRequests *prometheus.CounterVec
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		CaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callisto_case_transitions_total",
			Help: "Case status transitions by target status.",
		}, []string{"status"}),
		CommitteeVotes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callisto_committee_votes_total",
			Help: "Committee provider votes by provider and validity.",
		}, []string{"provider", "valid"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callisto_provider_review_seconds",
			Help:    "Committee provider review latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		SubmitAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callisto_submit_attempts_total",
			Help: "External submission attempts by outcome.",
		}, []string{"outcome"}),
		RetryQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callisto_retry_queue_depth",
			Help: "Pending submission retry items.",
		}),
		OutboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callisto_outbox_pending",
			Help: "Undelivered outbox entries.",
		}),
		CatalogCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callisto_catalog_cache_lookups_total",
			Help: "Catalog cache lookups by result (hit, miss, stale).",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callisto_http_requests_total",
			Help: "API requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
