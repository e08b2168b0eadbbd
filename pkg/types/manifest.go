package types

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// Manifest holds the parts of a registry manifest needed to compare image versions.
type Manifest struct {
	Tag           string        // Tag the manifest was requested for.
	Digest        digest.Digest // Digest of the image config, matching the local image ID.
	SchemaVersion int           // Manifest schema version, always 2 once validated.
}

// TagInfo is a single entry of a repository tag listing.
type TagInfo struct {
	Name        string `json:"name"`
	LastUpdated string `json:"last_updated"`
}

// TagListPage is one page of a repository tag listing.
//
// A nil Next marks the last page.
type TagListPage struct {
	Count   int       `json:"count,omitempty"`
	Next    *string   `json:"next"`
	Results []TagInfo `json:"results"`
}

// TagIterator yields the tags of a repository newest-first.
//
// Next returns nil once the listing is exhausted. Iterators are single-pass and
// cannot be restarted.
type TagIterator interface {
	Next(ctx context.Context) (*TagInfo, error)
}
