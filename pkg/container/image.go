package container

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	dockerContainerType "github.com/docker/docker/api/types/container"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// ImageRef describes the image an inspected container runs.
//
// Images referenced without a tag default to "latest". Images referenced by
// digest only get an empty tag and are not eligible for version checks.
func ImageRef(info dockerContainerType.InspectResponse) (types.LocalImageRef, error) {
	if info.ContainerJSONBase == nil || info.Config == nil {
		return types.LocalImageRef{}, errIncompleteInspection
	}

	name := strings.TrimPrefix(info.Name, "/")

	named, err := reference.ParseNormalizedNamed(info.Config.Image)
	if err != nil {
		return types.LocalImageRef{}, fmt.Errorf("%w: %q: %w", errParseImageReference, info.Config.Image, err)
	}

	tag := ""

	switch ref := named.(type) {
	case reference.NamedTagged:
		tag = ref.Tag()
	case reference.Digested:
		// Pinned by digest.
	default:
		if tagged, ok := reference.TagNameOnly(named).(reference.NamedTagged); ok {
			tag = tagged.Tag()
		}
	}

	image := types.LocalImageRef{
		Name:       name,
		Repository: reference.FamiliarName(named),
		Tag:        tag,
		Digest:     digest.Digest(info.Image),
		HostName:   info.Config.Hostname,
		IPv4:       firstIPv4(info.NetworkSettings),
	}

	if info.State != nil && info.State.StartedAt != "" {
		started, err := time.Parse(time.RFC3339Nano, info.State.StartedAt)
		if err != nil {
			logrus.WithError(err).WithField("container", name).Debug("Unreadable container start time")
		} else if !started.IsZero() && started.Year() > 1 {
			image.BootTime = started
		}
	}

	return image, nil
}

// firstIPv4 returns the IPv4 address of the first network by name.
func firstIPv4(settings *dockerContainerType.NetworkSettings) string {
	if settings == nil {
		return ""
	}

	names := make([]string, 0, len(settings.Networks))
	for networkName := range settings.Networks {
		names = append(names, networkName)
	}

	slices.Sort(names)

	for _, networkName := range names {
		endpoint := settings.Networks[networkName]
		if endpoint == nil {
			continue
		}

		if ip := net.ParseIP(endpoint.IPAddress); ip != nil && ip.To4() != nil {
			return endpoint.IPAddress
		}
	}

	return ""
}
