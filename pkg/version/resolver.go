// Package version works out human-readable version labels for running images.
//
// Registry tags are mutable and often non-descriptive, so a label is built from
// the image digest plus the most recent descriptive tag found pointing at it.
// Resolution fetches the manifest for the image's own tag first. When the tag
// still points at the running image, the tag listing is searched for a better
// name for it; when it has moved, the listing is searched for names for both
// the running and the new image. Searches are bounded by the fetch limit.
package version

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/registry/helpers"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Errors for version resolution.
var (
	// ErrEmptyTag indicates an image that was not started from a tag.
	ErrEmptyTag = errors.New("cannot check for updates of an image that is not from a tag")
	// errResolvePanic indicates resolution aborted unexpectedly.
	errResolvePanic = errors.New("version resolution aborted")
)

// ManifestFetcher resolves a tag to its manifest, nil when unavailable.
type ManifestFetcher interface {
	Fetch(ctx context.Context, repository, tag string, date *string) (*types.Manifest, error)
}

// TagSource creates single-pass tag iterators.
type TagSource interface {
	Enumerate(repository string) types.TagIterator
}

// Resolver computes VersionInfo for running images.
type Resolver struct {
	fetcher ManifestFetcher
	tags    TagSource
	config  Config
	now     func() time.Time
}

// NewResolver returns a Resolver. Unset config fields take their defaults.
func NewResolver(fetcher ManifestFetcher, tags TagSource, config Config) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		tags:    tags,
		config:  config,
		now:     time.Now,
	}
}

// Resolve computes the version labels for local.
//
// Registry failures degrade the result rather than failing it: an image the
// registry does not know is labelled by digest alone, without a latest version.
// The only errors are ErrEmptyTag, returned before any network call, and an
// unexpected abort, which still returns a digest-only label.
func (r *Resolver) Resolve(ctx context.Context, local types.LocalImageRef) (info types.VersionInfo, err error) {
	if !local.HasTag() {
		return types.VersionInfo{}, fmt.Errorf("%w: %s", ErrEmptyTag, local.Name)
	}

	fields := logrus.Fields{
		"container":  local.Name,
		"repository": local.Repository,
		"tag":        local.Tag,
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logrus.WithFields(fields).WithField("panic", recovered).Error("Version resolution aborted")

			info = r.baseInfo(local)
			info.CurrentVersion = FormatVersion("", local.Digest)
			err = fmt.Errorf("%w: %v", errResolvePanic, recovered)
		}
	}()

	start := r.now().UTC().Truncate(time.Second)
	info = r.baseInfo(local)
	info.CurrentVersion = FormatVersion("", local.Digest)

	config := r.config.For(local.Repository)

	domain, path, err := helpers.RepositoryPath(local.Repository)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Warn("Cannot resolve versions for repository")

		return info, nil
	}

	if domain != config.RegistryDomain {
		logrus.WithFields(fields).WithField("registry", domain).Debug("Image is not hosted on the configured registry")

		return info, nil
	}

	remote, err := r.fetcher.Fetch(ctx, path, local.Tag, nil)
	if err != nil {
		return info, fmt.Errorf("failed to fetch manifest for %s:%s: %w", local.Repository, local.Tag, err)
	}

	if remote == nil {
		logrus.WithFields(fields).Debug("Registry has no manifest for tag")

		return info, nil
	}

	info.CheckedAt = &start

	if helpers.DigestsEqual(remote.Digest, local.Digest) {
		alternate, _ := r.searchAlternates(ctx, path, local, config, config.currentLimit(), "")

		label := local.Tag
		if alternate != "" {
			label = alternate
		}

		info.CurrentVersion = FormatVersion(label, local.Digest)
		info.LatestVersion = FormatVersion(label, remote.Digest)
		info.State = types.VersionFresh

		logrus.WithFields(fields).WithField("version", info.CurrentVersion).Debug("Image is up to date")

		return info, nil
	}

	currentTag, latestTag := r.searchAlternates(ctx, path, local, config, config.FetchLimit, remote.Digest)
	if latestTag == "" && !config.IsFloating(local.Tag) {
		latestTag = local.Tag
	}

	info.CurrentVersion = FormatVersion(currentTag, local.Digest)
	info.LatestVersion = FormatVersion(latestTag, remote.Digest)
	info.State = types.VersionStale

	logrus.WithFields(fields).WithFields(logrus.Fields{
		"current": info.CurrentVersion,
		"latest":  info.LatestVersion,
	}).Debug("Newer image available")

	return info, nil
}

// searchAlternates walks the tag listing newest-first, enumerating at most
// limit tags, looking for a descriptive tag that points at the running image
// and, when remote is set, one that points at remote. Each stops at its first
// match. The image's own tag and floating aliases are skipped.
func (r *Resolver) searchAlternates(
	ctx context.Context,
	path string,
	local types.LocalImageRef,
	config Config,
	limit int,
	remote digest.Digest,
) (string, string) {
	var currentTag, remoteTag string

	wantRemote := remote != "" && !helpers.DigestsEqual(remote, local.Digest)
	tags := r.tags.Enumerate(path)

	for enumerated := 0; enumerated < limit; enumerated++ {
		tag, err := tags.Next(ctx)
		if err != nil {
			logrus.WithError(err).WithField("repository", local.Repository).Debug("Tag search ended early")

			break
		}

		if tag == nil {
			break
		}

		if tag.Name == local.Tag || config.IsFloating(tag.Name) {
			continue
		}

		var date *string
		if tag.LastUpdated != "" {
			updated := tag.LastUpdated
			date = &updated
		}

		manifest, err := r.fetcher.Fetch(ctx, path, tag.Name, date)
		if err != nil || manifest == nil {
			continue
		}

		switch {
		case currentTag == "" && helpers.DigestsEqual(manifest.Digest, local.Digest):
			currentTag = tag.Name
		case wantRemote && remoteTag == "" && helpers.DigestsEqual(manifest.Digest, remote):
			remoteTag = tag.Name
		}

		if currentTag != "" && (!wantRemote || remoteTag != "") {
			break
		}
	}

	return currentTag, remoteTag
}

// baseInfo fills the metadata passed through from the running container.
func (r *Resolver) baseInfo(local types.LocalImageRef) types.VersionInfo {
	info := types.VersionInfo{
		Name:        local.Name + " Docker Image",
		HostName:    local.HostName,
		IPv4Address: local.IPv4,
		State:       types.VersionUnknown,
	}

	if manufacturer, model, ok := strings.Cut(local.Repository, "/"); ok {
		info.Manufacturer = manufacturer
		info.Model = model
	}

	if !local.BootTime.IsZero() {
		booted := local.BootTime.UTC().Truncate(time.Second)
		info.BootedAt = &booted
	}

	return info
}
