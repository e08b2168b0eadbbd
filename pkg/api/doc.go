// Package api provides the HTTP API server for versiontower.
//
// Every registered endpoint requires a bearer token. The server runs either in
// the foreground, blocking until its context ends, or in the background next
// to the scheduler.
//
// Key components:
//   - API: Token-protected mux and server lifecycle.
//   - metrics: Prometheus exposition at /v1/metrics.
//   - versions: The last cycle's version information at /v1/versions.
//   - check: On-demand version checks at /v1/check.
//
// Usage example:
//
//	httpAPI := api.New(token, ":8080")
//	httpAPI.RegisterHandler(metricsHandler.Path, metricsHandler.Handle)
//	err := httpAPI.Start(ctx, false)
package api
