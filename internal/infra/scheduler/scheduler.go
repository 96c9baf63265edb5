package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockpile_manager/internal/domain/notification"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrRunInProgress is returned when a batch is requested while another one
// has not finished yet.
var ErrRunInProgress = errors.New("expiry notification run already in progress")

const defaultJobTimeout = 5 * time.Minute

// BatchRunner runs one expiry notification batch.
type BatchRunner interface {
	Run(ctx context.Context) (*notification.BatchResult, error)
}

// RunGuard lets at most one batch run at a time across every trigger (HTTP,
// cron and CLI). Overlapping runs could send duplicate messages before flags
// are written, so a second caller is refused rather than queued.
type RunGuard struct {
	mu     sync.Mutex
	runner BatchRunner
}

func NewRunGuard(runner BatchRunner) *RunGuard {
	return &RunGuard{runner: runner}
}

func (g *RunGuard) Run(ctx context.Context) (*notification.BatchResult, error) {
	if !g.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer g.mu.Unlock()
	return g.runner.Run(ctx)
}

type NotificationScheduler struct {
	cronEngine *cron.Cron
	runner     BatchRunner
	log        *logrus.Entry
	cronSpec   string
	jobTimeout time.Duration
}

func NewNotificationScheduler(
	runner BatchRunner,
	log *logrus.Logger,
	cronSpec string, // e.g., "0 9 * * *" (9:00 AM daily)
	location *time.Location,
) *NotificationScheduler {
	entry := log.WithField("component", "scheduler")
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(location),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(entry))),
		),
		runner:     runner,
		log:        entry,
		cronSpec:   cronSpec,
		jobTimeout: defaultJobTimeout,
	}
}

func (s *NotificationScheduler) Start() error {
	s.log.WithField("spec", s.cronSpec).Info("Starting notification scheduler")

	if _, err := s.cronEngine.AddFunc(s.cronSpec, s.runOnce); err != nil {
		return fmt.Errorf("could not add expiry notification cron job: %w", err)
	}

	s.cronEngine.Start()
	s.log.Info("Notification scheduler started")
	return nil
}

func (s *NotificationScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	s.log.Info("Cron job triggered for expiry notifications")
	res, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.log.Warn("Previous expiry notification run still in progress, skipping")
	case err != nil:
		s.log.WithError(err).Error("Expiry notification run failed")
	default:
		s.log.WithFields(logrus.Fields{
			"candidates": res.Candidates,
			"families":   len(res.Results),
			"failed":     res.Failed(),
		}).Info("Expiry notification run completed")
	}
}

func (s *NotificationScheduler) Stop() {
	s.log.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.log.Info("Notification scheduler gracefully stopped")
}
