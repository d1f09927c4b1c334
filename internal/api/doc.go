// Package api hosts the ops HTTP server, middleware, and handlers. Notable
// routes:
//   - GET /healthz and /readyz for probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/commands runs a bot command for a recipient and returns the
//     reply blocks.
//   - POST /v1/jobs/{name}/run fires a scheduled job immediately.
package api
