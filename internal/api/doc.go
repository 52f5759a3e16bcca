// Package api hosts the status page HTTP server. Notable routes:
//   - GET / renders the status page from the tracker's current view.
//   - GET /status and /verificationprogress proxy the gatekeeper status call,
//     signed with the configured key.
//   - GET /v1/progress returns the current view as JSON.
//   - GET /healthz / readyz for probes, GET /metrics for Prometheus scraping.
package api
