package types

// Report defines the results of one check cycle.
type Report interface {
	Scanned() []ImageReport // Every image that was checked.
	Fresh() []ImageReport   // Images whose tag still points at the running image.
	Stale() []ImageReport   // Images with a newer image behind their tag.
	Unknown() []ImageReport // Images the registry did not know.
	Failed() []ImageReport  // Images whose resolution failed.
	All() []ImageReport     // All images, grouped by state.
}

// ImageReport defines the result for a single image.
type ImageReport interface {
	Image() LocalImageRef // The running image.
	Version() VersionInfo // Resolved version information.
	Error() string        // Error message, if any.
	State() string        // Human-readable state.
}
