// Package filters provides filtering logic for the images versiontower checks.
// It selects containers by name, either exactly or by regular expression.
package filters
