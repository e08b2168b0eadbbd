// Package scheduling runs version checks periodically using cron specifications.
// It keeps at most one check running at a time and shuts down gracefully on
// interrupt signals or context cancellation.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/metrics"
	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// errScheduleFailed indicates the cron specification could not be scheduled.
var errScheduleFailed = errors.New("failed to schedule checks")

// checkWaitTimeout bounds how long shutdown waits for a running check.
const checkWaitTimeout = 60 * time.Second

// Params configures RunChecksOnSchedule.
type Params struct {
	// ScheduleSpec is the cron specification; empty disables periodic checks.
	ScheduleSpec string
	// CheckOnStart runs a check immediately before the scheduler starts.
	CheckOnStart bool
	// Lock is shared with the check API, or nil to create a new one.
	Lock chan bool
	// Notifier is closed on shutdown when set.
	Notifier types.Notifier
	// StartupMessage is called once with the time of the first scheduled run.
	StartupMessage func(nextRun time.Time)
	// Check performs a single check cycle.
	Check func(ctx context.Context) *metrics.Metric
}

// NewLock returns a check lock in its released state.
func NewLock() chan bool {
	lock := make(chan bool, 1)
	lock <- true

	return lock
}

// WaitForRunningCheck blocks until a running check releases the lock, the
// timeout passes or ctx is cancelled.
func WaitForRunningCheck(ctx context.Context, lock chan bool) {
	waitForLock(ctx, lock, checkWaitTimeout)
}

func waitForLock(ctx context.Context, lock chan bool, timeout time.Duration) {
	logrus.Debug("Checking lock status before shutdown.")

	if len(lock) > 0 {
		logrus.Debug("No check running, lock available.")

		return
	}

	select {
	case v := <-lock:
		lock <- v

		logrus.Debug("Lock acquired, check finished.")
	case <-time.After(timeout):
		logrus.Warn("Timeout waiting for running check to finish, proceeding with shutdown.")
	case <-ctx.Done():
		logrus.Warn("Context cancelled while waiting for running check.")
	}
}

// RunChecksOnSchedule schedules check cycles according to the cron
// specification and blocks until ctx is cancelled or SIGINT/SIGTERM arrives.
//
// A scheduled run that finds a check already in progress is skipped and
// recorded as a skipped cycle.
func RunChecksOnSchedule(ctx context.Context, params Params) error {
	lock := params.Lock
	if lock == nil {
		lock = NewLock()
	}

	scheduler := cron.New()

	checkFunc := func() {
		select {
		case v := <-lock:
			defer func() { lock <- v }()

			metric := params.Check(ctx)
			metrics.Default().RegisterScan(metric)
			logrus.Debug("Check completed")
		default:
			metrics.Default().RegisterScan(nil)
			logrus.Debug("Skipped another check already running.")
		}

		if nextRuns := scheduler.Entries(); len(nextRuns) > 0 {
			logrus.Debug("Scheduled next run: " + nextRuns[0].Next.String())
		}
	}

	if params.ScheduleSpec != "" {
		if err := scheduler.AddFunc(params.ScheduleSpec, checkFunc); err != nil {
			return fmt.Errorf("%w: %w", errScheduleFailed, err)
		}
	}

	var nextRun time.Time
	if entries := scheduler.Entries(); len(entries) > 0 {
		nextRun = entries[0].Schedule.Next(time.Now())
	}

	if params.StartupMessage != nil {
		params.StartupMessage(nextRun)
	}

	if params.CheckOnStart {
		checkFunc()
	}

	scheduler.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-ctx.Done():
		logrus.Debug("Context canceled, stopping scheduler...")
	case <-interrupt:
		logrus.Debug("Received interrupt signal, stopping scheduler...")
	}

	scheduler.Stop()
	logrus.Debug("Waiting for running check to be finished...")
	WaitForRunningCheck(ctx, lock)

	if params.Notifier != nil {
		params.Notifier.Close()
	}

	logrus.Debug("Scheduler stopped.")

	return nil
}
