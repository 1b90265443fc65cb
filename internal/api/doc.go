// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/cycles to request a poll cycle, GET /v1/cycles/{cycle_id} for its outcome.
//   - GET /v1/labels and /v1/labels/{label}/links to inspect the delivered-link cache.
package api
