package version

import (
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/nicholas-fedor/versiontower/pkg/registry/helpers"
)

// superfluousKeywords match tag words that carry no version information.
var superfluousKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|[-_.])amd64(?:$|[-_.])`),
	regexp.MustCompile(`(?:^|[-_.])latest(?:$|[-_.])`),
	regexp.MustCompile(`(?:^|[-_.])stable(?:$|[-_.])`),
	regexp.MustCompile(`^rc$`),
}

// TrimSuperfluous removes keywords like "latest" or "amd64" from tag.
func TrimSuperfluous(tag string) string {
	trimmed := tag
	for _, pattern := range superfluousKeywords {
		trimmed = pattern.ReplaceAllString(trimmed, "")
	}

	return strings.TrimSpace(trimmed)
}

// FormatVersion renders a version label, "<tag> (<short digest>)", or just
// "(<short digest>)" when there is no usable tag.
func FormatVersion(tag string, d digest.Digest) string {
	short := "(" + helpers.ShortDigest(d) + ")"
	if tag == "" {
		return short
	}

	return tag + " " + short
}
