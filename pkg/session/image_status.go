package session

import (
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// State enum values.
const (
	UnknownState State = iota // Registry did not know the tag.
	FreshState                // Tag still points at the running image.
	StaleState                // A newer image is behind the tag.
	FailedState               // Resolution failed.
)

// State indicates the outcome of an image's version check.
type State int

// ImageStatus holds an image's version check result.
//
//nolint:errname // ImageStatus is not an error type, it contains an error field.
type ImageStatus struct {
	image      types.LocalImageRef // Running image.
	info       types.VersionInfo   // Resolved version information.
	imageError error               // Error encountered, if any.
	state      State               // Outcome.
}

// NewImageStatus creates a status for a resolved image.
//
// A resolution error marks the image as failed regardless of the state the
// partial version information carries.
func NewImageStatus(image types.LocalImageRef, info types.VersionInfo, err error) *ImageStatus {
	status := &ImageStatus{
		image:      image,
		info:       info,
		imageError: err,
	}

	switch {
	case err != nil:
		status.state = FailedState
	case info.State == types.VersionFresh:
		status.state = FreshState
	case info.State == types.VersionStale:
		status.state = StaleState
	default:
		status.state = UnknownState
	}

	return status
}

// Image returns the running image.
func (u *ImageStatus) Image() types.LocalImageRef {
	return u.image
}

// Version returns the resolved version information.
func (u *ImageStatus) Version() types.VersionInfo {
	return u.info
}

// Error returns the resolution error, if any.
//
// Returns:
//   - string: Error message or empty if none.
func (u *ImageStatus) Error() string {
	if u.imageError == nil {
		return ""
	}

	return u.imageError.Error()
}

// State returns the human-readable state name.
func (u *ImageStatus) State() string {
	switch u.state {
	case UnknownState:
		return "Unknown"
	case FreshState:
		return "Fresh"
	case StaleState:
		return "Stale"
	case FailedState:
		return "Failed"
	default:
		return "Unknown"
	}
}
