/*
Package httpserver implements the HTTP API of the discovery service.

It exposes capability-based entity lookup backed by the discovery resolver,
so every response is re-checked against the ledger before it leaves the
server. The index only accelerates queries; it never decides them.

# API Endpoints

  - POST /api/discovery/find - Find entities matching an attribute filter
  - GET /api/entities/{entity_id} - Resolve one entity by id
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

Prometheus metrics are served on a separate listener when MetricsAddr is
configured, and pprof is mounted under /debug when enabled.

Example usage:

	resolver := discovery.NewResolver(indexReader, ledgerClient, store, logger)
	handler := httpserver.NewHandler(resolver, logger)

	config := &httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              10 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	server := httpserver.New(config, handler)
	server.RunInBackground()
*/
package httpserver
