package session

import (
	"sort"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// report implements the Report interface for session results.
type report struct {
	scanned []types.ImageReport // Checked images.
	fresh   []types.ImageReport // Up-to-date images.
	stale   []types.ImageReport // Outdated images.
	unknown []types.ImageReport // Images the registry did not know.
	failed  []types.ImageReport // Images whose check failed.
}

// SortableImages implements sort.Interface for reports.
type SortableImages []types.ImageReport

// Scanned returns checked images.
func (r *report) Scanned() []types.ImageReport {
	return r.scanned
}

// Fresh returns up-to-date images.
func (r *report) Fresh() []types.ImageReport {
	return r.fresh
}

// Stale returns outdated images.
func (r *report) Stale() []types.ImageReport {
	return r.stale
}

// Unknown returns images the registry did not know.
func (r *report) Unknown() []types.ImageReport {
	return r.unknown
}

// Failed returns images whose check failed.
func (r *report) Failed() []types.ImageReport {
	return r.failed
}

// All returns every image grouped by significance: stale, failed, unknown,
// then fresh.
func (r *report) All() []types.ImageReport {
	all := make([]types.ImageReport, 0, len(r.scanned))
	all = append(all, r.stale...)
	all = append(all, r.failed...)
	all = append(all, r.unknown...)
	all = append(all, r.fresh...)

	return all
}

// NewReport creates a report from progress data.
//
// Parameters:
//   - progress: Progress map to process.
//
// Returns:
//   - types.Report: Categorized and sorted report.
func NewReport(progress Progress) types.Report {
	report := &report{
		scanned: make([]types.ImageReport, 0, len(progress)),
		fresh:   make([]types.ImageReport, 0),
		stale:   make([]types.ImageReport, 0),
		unknown: make([]types.ImageReport, 0),
		failed:  make([]types.ImageReport, 0),
	}

	for _, status := range progress {
		categorizeImage(report, status)
	}

	sortCategories(report)

	return report
}

// categorizeImage assigns a status to report categories.
func categorizeImage(report *report, status *ImageStatus) {
	report.scanned = append(report.scanned, status)

	switch status.state {
	case FreshState:
		report.fresh = append(report.fresh, status)
	case StaleState:
		report.stale = append(report.stale, status)
	case FailedState:
		report.failed = append(report.failed, status)
	case UnknownState:
		report.unknown = append(report.unknown, status)
	default:
		report.unknown = append(report.unknown, status)
	}
}

// sortCategories sorts all report categories by container name.
func sortCategories(report *report) {
	sort.Sort(SortableImages(report.scanned))
	sort.Sort(SortableImages(report.fresh))
	sort.Sort(SortableImages(report.stale))
	sort.Sort(SortableImages(report.unknown))
	sort.Sort(SortableImages(report.failed))
}

// Len returns the slice length.
func (s SortableImages) Len() int {
	return len(s)
}

// Less compares container names.
func (s SortableImages) Less(i, j int) bool {
	return s[i].Image().Name < s[j].Image().Name
}

// Swap swaps two elements.
func (s SortableImages) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}
