package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
)

// RemoteStore keeps one user's progress and events in their document.
// It is authoritative while the user is signed in.
type RemoteStore struct {
	docs   DocumentStore
	userID string
	logger *slog.Logger
}

func NewRemoteStore(docs DocumentStore, userID string, logger *slog.Logger) *RemoteStore {
	return &RemoteStore{docs: docs, userID: userID, logger: logger}
}

func (s *RemoteStore) UserID() string { return s.userID }

func (s *RemoteStore) LoadProgress(ctx context.Context) (model.UserProgress, error) {
	doc, err := s.docs.Get(ctx, s.userID)
	if err != nil {
		return model.UserProgress{}, fmt.Errorf("repository/remote: loading progress: %w", err)
	}
	return ProgressFromDocument(doc)
}

// SaveProgress writes only the progress fields so concurrent profile edits
// are not clobbered.
func (s *RemoteStore) SaveProgress(ctx context.Context, p model.UserProgress) error {
	dates := make([]string, len(p.StreakDates))
	for i, d := range p.StreakDates {
		dates[i] = string(d)
	}
	err := s.docs.Update(ctx, s.userID, map[string]any{
		model.FieldPoints:      p.TotalPoints,
		model.FieldStreak:      p.CurrentStreak,
		model.FieldStreakDates: dates,
		model.FieldLastCheckIn: string(p.LastCheckInDate),
		model.FieldFreezes:     p.FreezeCount,
	})
	if err != nil {
		return fmt.Errorf("repository/remote: saving progress: %w", err)
	}
	return nil
}

func (s *RemoteStore) LoadEvents(ctx context.Context) ([]model.Event, error) {
	var stored []model.Event
	if _, err := s.docs.GetField(ctx, s.userID, model.FieldEvents, &stored); err != nil {
		return nil, fmt.Errorf("repository/remote: loading events: %w", err)
	}
	events, err := model.NormalizeEvents(stored)
	if err != nil {
		return nil, apperror.Corrupt(model.FieldEvents, err)
	}
	return events, nil
}

func (s *RemoteStore) SaveEvents(ctx context.Context, events []model.Event) error {
	if err := s.docs.Update(ctx, s.userID, map[string]any{model.FieldEvents: events}); err != nil {
		return fmt.Errorf("repository/remote: saving events: %w", err)
	}
	return nil
}

// FriendEvents reads the event list of every friend. Friends whose document
// is gone or malformed are skipped.
func (s *RemoteStore) FriendEvents(ctx context.Context) ([][]model.Event, error) {
	var friends []string
	if _, err := s.docs.GetField(ctx, s.userID, model.FieldFriends, &friends); err != nil {
		return nil, fmt.Errorf("repository/remote: loading friends: %w", err)
	}

	lists := make([][]model.Event, 0, len(friends))
	for _, friendID := range friends {
		var stored []model.Event
		_, err := s.docs.GetField(ctx, friendID, model.FieldEvents, &stored)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("repository/remote: loading events of friend %s: %w", friendID, err)
		}
		events, err := model.NormalizeEvents(stored)
		if err != nil {
			s.logger.Warn("skipping malformed friend events",
				slog.String("friendID", friendID),
				slog.String("error", err.Error()),
			)
			continue
		}
		for i := range events {
			events[i].OwnerID = friendID
		}
		lists = append(lists, events)
	}
	return lists, nil
}

// Snapshot is a validated view of a changed document.
type Snapshot struct {
	Progress model.UserProgress
	Events   []model.Event
}

// Watch streams validated snapshots of the user's document until ctx is done.
// Changes that fail validation are logged and dropped.
func (s *RemoteStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	docs, err := s.docs.Subscribe(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("repository/remote: subscribing: %w", err)
	}
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		for doc := range docs {
			snap, err := snapshotFromDocument(doc)
			if err != nil {
				s.logger.Warn("ignoring malformed document change",
					slog.String("userID", s.userID),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ProgressFromDocument validates the progress fields of doc.
func ProgressFromDocument(doc *model.UserDocument) (model.UserProgress, error) {
	p, err := model.NormalizeProgress(doc.Progress())
	if err != nil {
		return model.UserProgress{}, apperror.Corrupt("progress", err)
	}
	return p, nil
}

func snapshotFromDocument(doc *model.UserDocument) (Snapshot, error) {
	p, err := ProgressFromDocument(doc)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := model.NormalizeEvents(doc.Events)
	if err != nil {
		return Snapshot{}, apperror.Corrupt(model.FieldEvents, err)
	}
	return Snapshot{Progress: p, Events: events}, nil
}
