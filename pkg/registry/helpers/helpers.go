// Package helpers provides utility functions for registry-related operations in versiontower.
// It includes methods for parsing registry addresses, normalising repository paths and
// shortening digests for display.
package helpers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

// Domains for Docker Hub, the default registry.
const (
	DefaultRegistryDomain       = "docker.io"
	DefaultRegistryHost         = "index.docker.io"
	LegacyDefaultRegistryDomain = "index.docker.io"
)

// ShortDigestLength is the number of hex characters shown in version labels.
const ShortDigestLength = 6

// algorithmPrefix matches the "<algorithm>:" part of a digest string.
var algorithmPrefix = regexp.MustCompile(`^[a-z0-9]+(?:[.+_-][a-z0-9]+)*:`)

// GetRegistryAddress extracts the registry address from an image reference.
// It returns the domain part of the reference, mapping Docker Hub's default domain
// to its canonical host address if applicable.
func GetRegistryAddress(imageRef string) (string, error) {
	normalizedRef, err := reference.ParseNormalizedNamed(imageRef)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference: %w", err)
	}

	address := reference.Domain(normalizedRef)
	if address == DefaultRegistryDomain {
		address = DefaultRegistryHost
	}

	return address, nil
}

// RepositoryPath splits a repository name into its registry domain and its path
// on that registry. Official Docker Hub images gain the "library/" prefix, so
// "nginx" becomes ("docker.io", "library/nginx").
func RepositoryPath(repository string) (string, string, error) {
	named, err := reference.ParseNormalizedNamed(repository)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse repository %q: %w", repository, err)
	}

	return reference.Domain(named), reference.Path(named), nil
}

// NormalizeDigest standardizes a digest string for consistent comparison.
// It trims the algorithm prefix (e.g., "sha256:") to return the raw digest value.
func NormalizeDigest(d string) string {
	return algorithmPrefix.ReplaceAllString(d, "")
}

// DigestsEqual reports whether two digests identify the same content,
// ignoring the algorithm prefix and letter case.
func DigestsEqual(a, b digest.Digest) bool {
	left := NormalizeDigest(string(a))
	if left == "" {
		return false
	}

	return strings.EqualFold(left, NormalizeDigest(string(b)))
}

// ShortDigest returns the first six hex characters of a digest, without its
// algorithm prefix.
func ShortDigest(d digest.Digest) string {
	normalized := NormalizeDigest(string(d))
	if len(normalized) > ShortDigestLength {
		return normalized[:ShortDigestLength]
	}

	return normalized
}
