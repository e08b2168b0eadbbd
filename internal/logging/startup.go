// Package logging writes versiontower's startup information.
package logging

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/versiontower/internal/util"
	"github.com/nicholas-fedor/versiontower/pkg/notifications"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// WriteStartupMessage logs the version, notification setup, container
// selection, schedule and HTTP API status. Unless --no-startup-message is set
// the messages are also sent as a notification.
//
// Parameters:
//   - c: The command, providing access to flags.
//   - sched: The time of the first scheduled run, or zero if none.
//   - filtering: A description of the container selection.
//   - notifier: The notifier, or nil when notifications are disabled.
//   - version: The versiontower version string.
func WriteStartupMessage(
	c *cobra.Command,
	sched time.Time,
	filtering string,
	notifier types.Notifier,
	version string,
) {
	noStartupMessage, _ := c.PersistentFlags().GetBool("no-startup-message")

	startupLog := SetupStartupLogger(noStartupMessage, notifier)
	startupLog.Info("versiontower " + version)

	var notifierNames []string
	if notifier != nil {
		notifierNames = notifier.GetNames()
	}

	LogNotifierInfo(startupLog, notifierNames)
	startupLog.Info(filtering)
	LogScheduleInfo(startupLog, c, sched)

	if endpoints := enabledEndpoints(c); len(endpoints) > 0 {
		host, _ := c.PersistentFlags().GetString("http-api-host")
		port, _ := c.PersistentFlags().GetString("http-api-port")

		startupLog.WithFields(logrus.Fields{
			"addr":      host + ":" + port,
			"endpoints": endpoints,
		}).Info("The HTTP API is enabled")
	}

	if !noStartupMessage && notifier != nil {
		notifier.SendNotification(nil)
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		startupLog.Warn(
			"Trace level enabled: log will include sensitive information as credentials and tokens",
		)
	}
}

// SetupStartupLogger returns the entry startup messages are written to.
//
// Suppressed messages go to the local log only; otherwise the notifier starts
// batching so the messages are sent together.
func SetupStartupLogger(noStartupMessage bool, notifier types.Notifier) *logrus.Entry {
	if noStartupMessage {
		return notifications.LocalLog
	}

	if notifier != nil {
		notifier.StartNotification()
	}

	return logrus.NewEntry(logrus.StandardLogger())
}

// LogNotifierInfo logs the configured notification services.
func LogNotifierInfo(log *logrus.Entry, notifierNames []string) {
	if len(notifierNames) > 0 {
		log.Info("Using notifications: " + strings.Join(notifierNames, ", "))
	} else {
		log.Info("Using no notifications")
	}
}

// LogScheduleInfo logs when the next check runs.
func LogScheduleInfo(log *logrus.Entry, c *cobra.Command, sched time.Time) {
	runOnce, _ := c.PersistentFlags().GetBool("run-once")

	switch {
	case !sched.IsZero():
		until := util.FormatDuration(time.Until(sched))
		log.Info("Scheduling first check: " + sched.Format("2006-01-02 15:04:05 -0700 MST"))
		log.Info("Note that the first check will be performed in " + until)
	case runOnce:
		log.Info("Running a one time check.")
	default:
		log.Info("Periodic checks are not enabled.")
	}
}

func enabledEndpoints(c *cobra.Command) []string {
	var endpoints []string

	for _, endpoint := range []string{"metrics", "versions", "check"} {
		if enabled, _ := c.PersistentFlags().GetBool("http-api-" + endpoint); enabled {
			endpoints = append(endpoints, endpoint)
		}
	}

	return endpoints
}
