// Package metrics provides tracking and exposure of versiontower check metrics.
// It integrates with Prometheus to monitor check cycle outcomes, manifest cache
// efficiency and registry traffic.
//
// Key components:
//   - Metrics: Handles metric queuing and updates.
//   - NewMetric: Creates metrics from check reports.
//
// Usage example:
//
//	m := metrics.Default()
//	m.RegisterScan(metrics.NewMetric(report))
//	m.CacheLookup(metrics.CacheHit)
//
// The package uses Prometheus for metrics exposure and integrates with types.Report.
package metrics
