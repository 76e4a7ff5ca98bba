package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
)

// LocalStore keeps progress and events in a KeyValueStore, one key per field.
// It is authoritative while the user is signed out.
type LocalStore struct {
	kv KeyValueStore
}

func NewLocalStore(kv KeyValueStore) *LocalStore {
	return &LocalStore{kv: kv}
}

// LoadProgress reads and validates progress. Missing keys read as zero;
// values written by older clients are migrated.
func (s *LocalStore) LoadProgress(ctx context.Context) (model.UserProgress, error) {
	var stored model.StoredProgress
	var err error

	if stored.TotalPoints, err = s.getInt(ctx, KeyTotalPoints); err != nil {
		return model.UserProgress{}, err
	}
	if stored.Streak, err = s.getInt(ctx, KeyStreak); err != nil {
		return model.UserProgress{}, err
	}
	if stored.Freezes, err = s.getInt(ctx, KeyFreezes); err != nil {
		return model.UserProgress{}, err
	}

	last, _, err := s.kv.Get(ctx, KeyLastDate)
	if err != nil {
		return model.UserProgress{}, fmt.Errorf("repository/local: reading %s: %w", KeyLastDate, err)
	}
	stored.LastDate = last

	raw, ok, err := s.kv.Get(ctx, KeyStreakDates)
	if err != nil {
		return model.UserProgress{}, fmt.Errorf("repository/local: reading %s: %w", KeyStreakDates, err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &stored.StreakDates); err != nil {
			return model.UserProgress{}, apperror.Corrupt(KeyStreakDates, err)
		}
	}

	p, err := model.NormalizeProgress(stored)
	if err != nil {
		return model.UserProgress{}, apperror.Corrupt("progress", err)
	}
	return p, nil
}

// SaveProgress writes every progress key. The legacy "streak" and
// "lastDate" keys are kept current so older clients still read sane values.
func (s *LocalStore) SaveProgress(ctx context.Context, p model.UserProgress) error {
	dates, err := json.Marshal(p.StreakDates)
	if err != nil {
		return fmt.Errorf("repository/local: encoding streak dates: %w", err)
	}
	values := []struct{ key, value string }{
		{KeyTotalPoints, strconv.Itoa(p.TotalPoints)},
		{KeyStreak, strconv.Itoa(p.CurrentStreak)},
		{KeyLastDate, string(p.LastCheckInDate)},
		{KeyStreakDates, string(dates)},
		{KeyFreezes, strconv.Itoa(p.FreezeCount)},
	}
	for _, v := range values {
		if err := s.kv.Set(ctx, v.key, v.value); err != nil {
			return fmt.Errorf("repository/local: writing %s: %w", v.key, err)
		}
	}
	return nil
}

func (s *LocalStore) LoadEvents(ctx context.Context) ([]model.Event, error) {
	raw, ok, err := s.kv.Get(ctx, KeyEvents)
	if err != nil {
		return nil, fmt.Errorf("repository/local: reading %s: %w", KeyEvents, err)
	}
	if !ok || raw == "" {
		return []model.Event{}, nil
	}
	var stored []model.Event
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, apperror.Corrupt(KeyEvents, err)
	}
	events, err := model.NormalizeEvents(stored)
	if err != nil {
		return nil, apperror.Corrupt(KeyEvents, err)
	}
	return events, nil
}

func (s *LocalStore) SaveEvents(ctx context.Context, events []model.Event) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("repository/local: encoding events: %w", err)
	}
	if err := s.kv.Set(ctx, KeyEvents, string(raw)); err != nil {
		return fmt.Errorf("repository/local: writing %s: %w", KeyEvents, err)
	}
	return nil
}

// FriendEvents is always empty: there are no friends while signed out.
func (s *LocalStore) FriendEvents(ctx context.Context) ([][]model.Event, error) {
	return nil, nil
}

// Reset wipes all local state.
func (s *LocalStore) Reset(ctx context.Context) error {
	if err := s.kv.Clear(ctx); err != nil {
		return fmt.Errorf("repository/local: clearing store: %w", err)
	}
	return nil
}

func (s *LocalStore) getInt(ctx context.Context, key string) (int, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("repository/local: reading %s: %w", key, err)
	}
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Corrupt(key, err)
	}
	return n, nil
}
