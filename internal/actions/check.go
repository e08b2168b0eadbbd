package actions

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/filters"
	"github.com/nicholas-fedor/versiontower/pkg/session"
	"github.com/nicholas-fedor/versiontower/pkg/types"
	"github.com/nicholas-fedor/versiontower/pkg/version"
)

// Resolver resolves the versions of a batch of images.
type Resolver interface {
	ResolveAll(ctx context.Context, images []types.LocalImageRef) []version.Result
}

// RunCheck runs one version check over the selected images.
//
// Images started from a digest without a tag are skipped. Monitored names
// that match no container are logged. Only a failure to list the images is
// returned as an error; resolution failures land in the report.
func RunCheck(
	ctx context.Context,
	inspector types.ImageInspector,
	resolver Resolver,
	filter types.Filter,
	names []string,
) (types.Report, error) {
	images, err := inspector.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errListImagesFailed, err)
	}

	if missing := filters.MissingNames(names, images); len(missing) > 0 {
		logrus.WithField("containers", missing).Warn("Monitored containers not found")
	}

	selected := make([]types.LocalImageRef, 0, len(images))

	for _, image := range images {
		if filter != nil && !filter(image) {
			continue
		}

		if !image.HasTag() {
			logrus.WithFields(logrus.Fields{
				"container": image.Name,
				"image":     image.Repository,
			}).Debug("Skipping image without tag")

			continue
		}

		selected = append(selected, image)
	}

	logrus.WithFields(logrus.Fields{
		"listed":   len(images),
		"selected": len(selected),
	}).Debug("Checking image versions")

	progress := session.Progress{}

	for _, result := range resolver.ResolveAll(ctx, selected) {
		progress.AddResult(result)

		fields := logrus.Fields{
			"container": result.Image.Name,
			"image":     result.Image.Repository + ":" + result.Image.Tag,
		}

		switch {
		case result.Err != nil:
			logrus.WithFields(fields).WithError(result.Err).Warn("Could not check image version")
		case result.Info.State == types.VersionStale:
			logrus.WithFields(fields).WithFields(logrus.Fields{
				"current_version": result.Info.CurrentVersion,
				"newest_version":  result.Info.LatestVersion,
			}).Info("Found newer image")
		}
	}

	return progress.Report(), nil
}
