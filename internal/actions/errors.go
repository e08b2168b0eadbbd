package actions

import "errors"

// Errors for check cycles.
var (
	// errListImagesFailed indicates the local images could not be listed.
	errListImagesFailed = errors.New("failed to list container images")
)
