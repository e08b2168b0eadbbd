package types

import "time"

// VersionState describes how a running image compares to its registry.
type VersionState string

// Version states.
const (
	// VersionUnknown indicates the registry has no usable manifest for the image tag.
	VersionUnknown VersionState = "unknown"
	// VersionFresh indicates the tag still points at the running image.
	VersionFresh VersionState = "fresh"
	// VersionStale indicates the tag points at a newer image.
	VersionStale VersionState = "stale"
)

// VersionInfo is the resolved version information for one running image.
type VersionInfo struct {
	Name           string       `json:"name"`
	CurrentVersion string       `json:"current_version"`
	LatestVersion  string       `json:"newest_version,omitempty"`
	CheckedAt      *time.Time   `json:"newest_version_checked_at,omitempty"`
	BootedAt       *time.Time   `json:"booted_at,omitempty"`
	Manufacturer   string       `json:"manufacturer,omitempty"`
	Model          string       `json:"model,omitempty"`
	HostName       string       `json:"host_name,omitempty"`
	IPv4Address    string       `json:"ipv4_address,omitempty"`
	State          VersionState `json:"state"`
}

// HasUpdateInfo reports whether the registry knew the image tag.
func (v VersionInfo) HasUpdateInfo() bool {
	return v.LatestVersion != ""
}
