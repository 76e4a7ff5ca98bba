package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

// NotificationService fills and reads the notifications outbox.
type NotificationService struct {
	repo     repository.NotificationRepository
	settings *SettingsService
	docs     repository.DocumentStore
	clock    Clock
	logger   *slog.Logger
}

func NewNotificationService(
	repo repository.NotificationRepository,
	settings *SettingsService,
	docs repository.DocumentStore,
	clock Clock,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{repo: repo, settings: settings, docs: docs, clock: clock, logger: logger}
}

func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	list, err := s.repo.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("service/notifications: listing for %s: %w", userID, err)
	}
	return list, nil
}

// SendStreakReminders queues a reminder for every user with notifications
// on whose last check-in was yesterday. It returns how many were queued;
// reruns on the same day queue nothing new.
func (s *NotificationService) SendStreakReminders(ctx context.Context) (int, error) {
	users, err := s.settings.NotifiableUsers(ctx)
	if err != nil {
		return 0, err
	}
	today := s.clock.Today()

	sent := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		doc, err := s.docs.Get(ctx, userID)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return sent, fmt.Errorf("service/notifications: loading %s: %w", userID, err)
		}
		progress, err := repository.ProgressFromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping reminder for malformed progress",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if progress.LastCheckInDate != today.Prev() {
			continue
		}

		stored, err := s.repo.AddNotification(ctx, &model.Notification{
			UserID:  userID,
			Kind:    model.NotificationStreakAtRisk,
			Message: streakReminderText(progress),
			Day:     today,
		})
		if err != nil {
			return sent, fmt.Errorf("service/notifications: queueing for %s: %w", userID, err)
		}
		if stored {
			sent++
		}
	}
	return sent, nil
}

func streakReminderText(p model.UserProgress) string {
	msg := fmt.Sprintf("Check in today to keep your %d-day streak.", p.CurrentStreak)
	if p.FreezeCount > 0 {
		msg += fmt.Sprintf(" You also have %d streak freeze(s).", p.FreezeCount)
	}
	return msg
}
