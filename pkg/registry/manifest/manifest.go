// Package manifest resolves registry tags to validated schema 2 manifests.
//
// Only the image config digest is read from a manifest; it is what the Docker
// daemon reports as a container's image ID. Manifests with any other schema
// version are remembered as negative cache entries and never reported.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/registry/cache"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Registry defaults and the requested content type.
const (
	DefaultRegistryURL = "https://registry-1.docker.io"
	ContentType        = "application/vnd.docker.distribution.manifest.v2+json"
	// Variant names the cache entry for ContentType.
	Variant = "vnd.docker.distribution.manifest.v2+json"
	// SupportedSchemaVersion is the only manifest schema version with a usable digest.
	SupportedSchemaVersion = 2
)

// maxManifestSize caps the manifest response body.
const maxManifestSize = 4 << 20

// Errors for manifest operations.
var (
	// ErrEmptyTag indicates a fetch was requested without a tag.
	ErrEmptyTag = errors.New("cannot fetch manifest for an empty tag")
	// ErrInvalidSchema indicates a manifest without a usable schema 2 config digest.
	ErrInvalidSchema = errors.New("manifest is not a schema 2 image manifest")
	// errDecodeManifest indicates a manifest body that is not JSON.
	errDecodeManifest = errors.New("failed to decode manifest")
)

// TokenSource provides bearer tokens for repositories.
type TokenSource interface {
	GetToken(ctx context.Context, repository string) (string, error)
}

// Doer performs HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Fetcher.
type Options struct {
	RegistryURL string                 // Registry base URL, DefaultRegistryURL when empty.
	HTTPClient  Doer                   // http.DefaultClient when nil.
	Timeout     time.Duration          // Per-request timeout, none when zero.
	UserAgent   string                 // User-Agent header, omitted when empty.
	Observer    types.RegistryObserver // Optional request counter.
}

// Fetcher resolves tags to manifests, consulting the cache before the network.
type Fetcher struct {
	tokens TokenSource
	cache  *cache.Cache
	opts   Options
}

// NewFetcher returns a Fetcher. A nil manifestCache disables caching.
func NewFetcher(tokens TokenSource, manifestCache *cache.Cache, opts Options) *Fetcher {
	if opts.RegistryURL == "" {
		opts.RegistryURL = DefaultRegistryURL
	}

	opts.RegistryURL = strings.TrimSuffix(opts.RegistryURL, "/")

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Fetcher{tokens: tokens, cache: manifestCache, opts: opts}
}

// Fetch returns the manifest tag currently points at in repository, or nil when
// the registry has no usable manifest for it.
//
// date is the tag's last-updated date from the tag listing. When it is nil the
// cache is bypassed and nothing is written to it. Network, auth and decoding
// failures all yield nil without error; the only error is ErrEmptyTag.
func (f *Fetcher) Fetch(ctx context.Context, repository, tag string, date *string) (*types.Manifest, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTag, repository)
	}

	fields := logrus.Fields{"repository": repository, "tag": tag}
	key := cache.Key{Repository: repository, Tag: tag, Variant: Variant}

	if date != nil && f.cache != nil {
		result, payload := f.cache.Get(key, date)

		switch result {
		case cache.HitNegative:
			logrus.WithFields(fields).Debug("Manifest cached as unavailable")

			return nil, nil //nolint:nilnil
		case cache.HitValid:
			manifest, err := Decode(tag, payload)
			if err == nil {
				logrus.WithFields(fields).Debug("Manifest served from cache")

				return manifest, nil
			}

			logrus.WithError(err).WithFields(fields).Debug("Ignoring undecodable cached manifest")
		case cache.Miss:
		}
	}

	body, ok := f.download(ctx, repository, tag)
	if !ok {
		return nil, nil //nolint:nilnil
	}

	manifest, err := Decode(tag, body)
	if errors.Is(err, ErrInvalidSchema) {
		logrus.WithError(err).WithFields(fields).Debug("Registry returned an unusable manifest")
		f.store(key, nil, date)

		return nil, nil //nolint:nilnil
	}

	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Registry returned an undecodable manifest")

		return nil, nil //nolint:nilnil
	}

	f.store(key, body, date)

	return manifest, nil
}

// URL returns the manifest endpoint for repository and tag.
func (f *Fetcher) URL(repository, tag string) string {
	return fmt.Sprintf("%s/v2/%s/manifests/%s", f.opts.RegistryURL, repository, url.PathEscape(tag))
}

func (f *Fetcher) store(key cache.Key, body []byte, date *string) {
	if date == nil || f.cache == nil {
		return
	}

	if err := f.cache.Put(key, body, *date); err != nil {
		logrus.WithError(err).WithField("key", key.String()).Warn("Failed to cache manifest")
	}
}

// download performs the authenticated manifest request and reports whether a
// non-empty 2xx body was received.
func (f *Fetcher) download(ctx context.Context, repository, tag string) ([]byte, bool) {
	fields := logrus.Fields{"repository": repository, "tag": tag}

	token, err := f.tokens.GetToken(ctx, repository)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("No registry token, treating manifest as unavailable")

		return nil, false
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	manifestURL := f.URL(repository, tag)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Failed to build manifest request")

		return nil, false
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", ContentType)

	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		f.observe(0)
		logrus.WithError(err).WithFields(fields).Debug("Manifest request failed")

		return nil, false
	}
	defer resp.Body.Close()

	f.observe(resp.StatusCode)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		logrus.WithFields(fields).WithFields(logrus.Fields{
			"url":    manifestURL,
			"status": resp.Status,
		}).Debug("Failed to download manifest")

		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Failed to read manifest body")

		return nil, false
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		logrus.WithFields(fields).Debug("Registry returned an empty manifest")

		return nil, false
	}

	return body, true
}

func (f *Fetcher) observe(statusCode int) {
	if f.opts.Observer != nil {
		f.opts.Observer.RegistryRequest("manifest", statusCode)
	}
}

// Decode reads the tag's manifest from body.
//
// It fails with ErrInvalidSchema when the schema version is not 2 or the config
// digest is missing.
func Decode(tag string, body []byte) (*types.Manifest, error) {
	var manifest ocispec.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", errDecodeManifest, err)
	}

	if manifest.SchemaVersion != SupportedSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrInvalidSchema, manifest.SchemaVersion)
	}

	if manifest.Config.Digest == "" {
		return nil, fmt.Errorf("%w: missing config digest", ErrInvalidSchema)
	}

	return &types.Manifest{
		Tag:           tag,
		Digest:        manifest.Config.Digest,
		SchemaVersion: manifest.SchemaVersion,
	}, nil
}
