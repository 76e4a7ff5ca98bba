package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory TrackerStore. Set saveErr to make every write
// fail; saves counts successful and failed writes alike. friendsErr fails
// FriendEvents.
type fakeStore struct {
	progress   model.UserProgress
	events     []model.Event
	friends    [][]model.Event
	friendsErr error
	saveErr    error
	saves      int
}

func (f *fakeStore) LoadProgress(context.Context) (model.UserProgress, error) {
	return f.progress.Clone(), nil
}

func (f *fakeStore) SaveProgress(_ context.Context, p model.UserProgress) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.progress = p.Clone()
	return nil
}

func (f *fakeStore) LoadEvents(context.Context) ([]model.Event, error) {
	return slices.Clone(f.events), nil
}

func (f *fakeStore) SaveEvents(_ context.Context, events []model.Event) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.events = slices.Clone(events)
	return nil
}

func (f *fakeStore) FriendEvents(context.Context) ([][]model.Event, error) {
	if f.friendsErr != nil {
		return nil, f.friendsErr
	}
	return f.friends, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestTracker builds a tracker over store with a fixed clock.
func newTestTracker(t *testing.T, store *fakeStore, today model.Day) *Tracker {
	t.Helper()
	tr, err := NewTracker(context.Background(), "user-1", store, FixedClock(today), discardLogger())
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	return tr
}

// newTestDB returns an in-memory SQLite database for services that work
// against real repositories.
func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func days(ds ...string) []model.Day {
	out := make([]model.Day, len(ds))
	for i, d := range ds {
		out[i] = model.Day(d)
	}
	return out
}
