// Package meta holds build information injected at link time.
package meta

var (
	// Version is the versiontower release, set with -ldflags "-X".
	Version = "v0.0.0-unknown"
	// UserAgent is sent with every registry request.
	UserAgent = "versiontower/" + Version
)
