// Package actions runs versiontower's version check cycles.
//
// A cycle lists the images of the monitored containers, resolves their
// versions against the registry, and turns the results into a report that is
// sent to the notifier, served by the HTTP API, and recorded as metrics.
package actions
