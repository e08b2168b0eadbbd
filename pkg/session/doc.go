// Package session collects the outcome of a version check cycle.
//
// It tracks the resolution result of every checked image, categorizes the
// outcomes, and generates reports for scanned, fresh, stale, unknown and
// failed images.
//
// Key components:
//   - State: Enum for image states (e.g., Fresh, Stale).
//   - ImageStatus: Tracks an individual image and its version information.
//   - Progress: Maps image statuses during a cycle.
//   - Report: Categorizes and sorts image outcomes.
//
// Usage example:
//
//	progress := session.Progress{}
//	for _, result := range resolver.ResolveAll(ctx, images) {
//	    progress.AddResult(result)
//	}
//	report := progress.Report()
//	stale := report.Stale()
package session
