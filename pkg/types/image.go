package types

import (
	"context"
	"time"

	"github.com/opencontainers/go-digest"
)

// LocalImageRef describes the image a running container was created from.
type LocalImageRef struct {
	Name       string        // Container name without the leading slash.
	Repository string        // Familiar repository name, e.g. "acme/app".
	Tag        string        // Tag the container was started with.
	Digest     digest.Digest // Local image ID, e.g. "sha256:abc...".
	BootTime   time.Time     // When the container was started.
	HostName   string        // Container host name.
	IPv4       string        // First IPv4 address of the container.
}

// HasTag reports whether the image was started from a tag and is eligible for a version check.
func (r LocalImageRef) HasTag() bool {
	return r.Tag != ""
}

// ImageInspector lists the images of running containers.
type ImageInspector interface {
	ListImages(ctx context.Context) ([]LocalImageRef, error)
}
