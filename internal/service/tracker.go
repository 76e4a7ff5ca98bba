package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

// TrackerStore is everything a Tracker reads and writes.
// repository.LocalStore and repository.RemoteStore both satisfy it.
type TrackerStore interface {
	ProgressStore
	EventStore
}

// Tracker is the progress and event aggregate of one user, or of the
// anonymous local profile.
type Tracker struct {
	UserID string
	Streak *StreakEngine
	Events *EventLedger
}

// NewTracker loads progress and events from store.
func NewTracker(ctx context.Context, userID string, store TrackerStore, clock Clock, logger *slog.Logger) (*Tracker, error) {
	streak, err := NewStreakEngine(ctx, store, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("service/tracker: loading progress: %w", err)
	}
	events, err := NewEventLedger(ctx, store, streak, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("service/tracker: loading events: %w", err)
	}
	return &Tracker{UserID: userID, Streak: streak, Events: events}, nil
}

// Apply installs a remote change. An update that lands while a local edit
// is being saved wins over that edit in memory.
func (t *Tracker) Apply(snap repository.Snapshot) {
	t.Streak.Replace(snap.Progress)
	t.Events.Replace(snap.Events)
}

// Calendar combines streak highlighting with event dots.
func (t *Tracker) Calendar() model.MarkedDates {
	return t.Streak.Markers().Merge(t.Events.MarkedDates())
}

// =========================================================================
// SESSIONS
// =========================================================================

// Sessions keeps one Tracker per signed-in user, backed by that user's
// document and kept current through the document change feed. A tracker is
// dropped when its user signs out.
type Sessions struct {
	mu       sync.Mutex
	base     context.Context
	docs     repository.DocumentStore
	clock    Clock
	logger   *slog.Logger
	trackers map[string]*session
}

type session struct {
	tracker *Tracker
	cancel  context.CancelFunc
}

// NewSessions ties every watch goroutine to ctx.
func NewSessions(ctx context.Context, docs repository.DocumentStore, clock Clock, logger *slog.Logger) *Sessions {
	return &Sessions{
		base:     ctx,
		docs:     docs,
		clock:    clock,
		logger:   logger,
		trackers: make(map[string]*session),
	}
}

// Tracker returns the user's tracker, loading it on first use.
func (s *Sessions) Tracker(ctx context.Context, userID string) (*Tracker, error) {
	if userID == "" {
		return nil, errors.New("service/sessions: user ID must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.trackers[userID]; ok {
		return sess.tracker, nil
	}

	store := repository.NewRemoteStore(s.docs, userID, s.logger)
	tracker, err := NewTracker(ctx, userID, store, s.clock, s.logger)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(s.base)
	changes, err := store.Watch(watchCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		for snap := range changes {
			tracker.Apply(snap)
		}
	}()

	s.trackers[userID] = &session{tracker: tracker, cancel: cancel}
	s.logger.Debug("tracker loaded", slog.String("userID", userID))
	return tracker, nil
}

// Drop forgets the user's tracker and stops its change feed.
func (s *Sessions) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.trackers[userID]; ok {
		sess.cancel()
		delete(s.trackers, userID)
	}
}

// HandleAuthChange is an AuthListener. Signing out drops the tracker so the
// next sign-in reloads from the store.
func (s *Sessions) HandleAuthChange(userID string, signedIn bool) {
	if !signedIn {
		s.Drop(userID)
	}
}

// Close stops every change feed.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.trackers {
		sess.cancel()
		delete(s.trackers, id)
	}
}
