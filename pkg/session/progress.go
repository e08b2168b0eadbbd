package session

import (
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/types"
	"github.com/nicholas-fedor/versiontower/pkg/version"
)

// Progress tracks image statuses during a cycle, keyed by container name.
type Progress map[string]*ImageStatus

// AddResult records the resolution result of one image.
func (m Progress) AddResult(result version.Result) {
	m.Add(NewImageStatus(result.Image, result.Info, result.Err))
}

// Add records a status, replacing any earlier one for the same container.
func (m Progress) Add(status *ImageStatus) {
	m[status.image.Name] = status

	fields := logrus.Fields{
		"container": status.image.Name,
		"image":     status.image.Repository + ":" + status.image.Tag,
		"state":     status.State(),
	}

	if status.imageError != nil {
		logrus.WithFields(fields).WithError(status.imageError).Debug("Recorded image status")

		return
	}

	logrus.WithFields(fields).WithFields(logrus.Fields{
		"current_version": status.info.CurrentVersion,
		"newest_version":  status.info.LatestVersion,
	}).Debug("Recorded image status")
}

// Report creates a report from the recorded statuses.
func (m Progress) Report() types.Report {
	return NewReport(m)
}
