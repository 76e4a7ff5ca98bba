// Package jobs runs background work on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ReminderSender queues streak reminders and reports how many it queued.
type ReminderSender interface {
	SendStreakReminders(ctx context.Context) (int, error)
}

// Scheduler fires the daily streak reminder run.
type Scheduler struct {
	cron      *cron.Cron
	reminders ReminderSender
	logger    *slog.Logger
}

// NewScheduler registers the reminder job on schedule, a standard five-field
// cron expression evaluated in loc. Jobs run with ctx.
func NewScheduler(ctx context.Context, schedule string, loc *time.Location, reminders ReminderSender, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		reminders: reminders,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunReminders(ctx) }); err != nil {
		return nil, fmt.Errorf("jobs: scheduling reminders %q: %w", schedule, err)
	}
	return s, nil
}

// RunReminders runs the reminder job once. Failures are logged.
func (s *Scheduler) RunReminders(ctx context.Context) {
	start := time.Now()
	sent, err := s.reminders.SendStreakReminders(ctx)
	if err != nil {
		s.logger.Error("streak reminders failed",
			slog.Int("sent", sent),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("streak reminders sent",
		slog.Int("sent", sent),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
