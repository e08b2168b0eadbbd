package actions

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/metrics"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// ReportSink receives the report of every completed cycle.
type ReportSink interface {
	Update(report types.Report)
}

// CycleMemo is state memoised within a single cycle, such as registry tokens.
type CycleMemo interface {
	Reset()
}

// CheckParams holds what a check cycle operates on.
type CheckParams struct {
	Inspector types.ImageInspector
	Resolver  Resolver
	Notifier  types.Notifier // Optional.
	Sink      ReportSink     // Optional.
	Memo      CycleMemo      // Optional, reset before the cycle starts.
	Filter    types.Filter
	Names     []string // Monitored container names, for missing-container warnings.
}

// RunChecksWithNotifications runs one check cycle and distributes its report.
//
// Log entries produced during the cycle are batched into the notification
// together with the report. The returned metric summarizes the cycle; a cycle
// whose images could not be listed reports nothing scanned.
func RunChecksWithNotifications(ctx context.Context, params CheckParams) *metrics.Metric {
	if params.Memo != nil {
		params.Memo.Reset()
	}

	if params.Notifier != nil {
		params.Notifier.StartNotification()
	}

	report, err := RunCheck(ctx, params.Inspector, params.Resolver, params.Filter, params.Names)
	if err != nil {
		logrus.WithError(err).Error("Version check failed")

		if params.Notifier != nil {
			params.Notifier.SendNotification(nil)
		}

		return &metrics.Metric{}
	}

	logrus.WithFields(logrus.Fields{
		"scanned": len(report.Scanned()),
		"fresh":   len(report.Fresh()),
		"stale":   len(report.Stale()),
		"unknown": len(report.Unknown()),
		"failed":  len(report.Failed()),
	}).Info("Version check finished")

	if params.Sink != nil {
		params.Sink.Update(report)
	}

	if params.Notifier != nil {
		params.Notifier.SendNotification(report)
	}

	return metrics.NewMetric(report)
}
