// Package metrics exposes Prometheus instrumentation for the discovery
// service on a dedicated listener, separate from the API port.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agent_registry"

var (
	// DiscoveryRequests counts find requests by outcome.
	DiscoveryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discovery_requests_total",
		Help:      "Discovery find requests by outcome.",
	}, []string{"status"})

	// DiscoveryDuration observes end-to-end find latency, including the
	// ledger re-checks and document fetches.
	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "discovery_duration_seconds",
		Help:      "End-to-end discovery find latency.",
		Buckets:   prometheus.DefBuckets,
	})

	// DiscoveryPartialResults counts results returned with an unresolved
	// capability document.
	DiscoveryPartialResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discovery_partial_results_total",
		Help:      "Discovery results whose capability document could not be resolved.",
	})

	// EntityLookups counts direct entity resolutions by outcome.
	EntityLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entity_lookups_total",
		Help:      "Direct entity lookups by outcome.",
	}, []string{"status"})

	// RegistrationSteps counts workflow step executions by outcome.
	RegistrationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registration_steps_total",
		Help:      "Registration workflow step executions by outcome.",
	}, []string{"step", "status"})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on listenAddr.
func New(listenAddr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the scrape listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
