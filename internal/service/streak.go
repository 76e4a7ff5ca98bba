// Package service holds Waypoint's business rules.
//
// LAYERS:
//
//	handler / cli  → service (rules)  → repository (storage)
//
// The two core pieces are StreakEngine (check-ins, points, freezes) and
// EventLedger (a user's calendar events). A Tracker bundles one of each for
// a user; Sessions keeps the trackers of signed-in users.
//
// RETAIN-ON-FAILURE:
// Every mutation updates memory first and then persists. When the store
// call fails the new state is kept, the failure is logged, and the caller
// gets the new state together with an apperror.ErrPersistence error so it
// can show a generic alert. Nothing is rolled back or retried.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
)

// ProgressStore persists one user's progress.
type ProgressStore interface {
	LoadProgress(ctx context.Context) (model.UserProgress, error)
	SaveProgress(ctx context.Context, p model.UserProgress) error
}

// StreakEngine owns a user's check-in streak and point balance.
type StreakEngine struct {
	mu       sync.Mutex
	store    ProgressStore
	clock    Clock
	logger   *slog.Logger
	progress model.UserProgress
}

// NewStreakEngine loads the stored progress.
func NewStreakEngine(ctx context.Context, store ProgressStore, clock Clock, logger *slog.Logger) (*StreakEngine, error) {
	p, err := store.LoadProgress(ctx)
	if err != nil {
		return nil, err
	}
	return &StreakEngine{
		store:    store,
		clock:    clock,
		logger:   logger,
		progress: p.Clone(),
	}, nil
}

// Snapshot returns a copy of the current progress.
func (e *StreakEngine) Snapshot() model.UserProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.Clone()
}

// Today is the engine's notion of the current day.
func (e *StreakEngine) Today() model.Day {
	return e.clock.Today()
}

// CheckIn records a check-in for today. A second check-in on the same day
// changes nothing and writes nothing.
func (e *StreakEngine) CheckIn(ctx context.Context, today model.Day) (model.UserProgress, error) {
	if !today.Valid() {
		return model.UserProgress{}, apperror.ValidationFailed("date", "not a calendar date")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.progress.LastCheckInDate == today {
		return e.progress.Clone(), nil
	}
	return e.commit(ctx, "check-in", nextCheckIn(e.progress, today))
}

// CheckInToday checks in on the clock's current day.
func (e *StreakEngine) CheckInToday(ctx context.Context) (model.UserProgress, error) {
	return e.CheckIn(ctx, e.clock.Today())
}

// PressDay handles a tap on a calendar day. Only today counts; presses on
// past or future days are ignored and report accepted=false.
func (e *StreakEngine) PressDay(ctx context.Context, day model.Day) (p model.UserProgress, accepted bool, err error) {
	if day != e.clock.Today() {
		return e.Snapshot(), false, nil
	}
	p, err = e.CheckIn(ctx, day)
	return p, true, err
}

// RedeemFreeze trades FreezeCost points for one streak-freeze token.
func (e *StreakEngine) RedeemFreeze(ctx context.Context) (model.UserProgress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.progress.TotalPoints < model.FreezeCost {
		return e.progress.Clone(), apperror.InsufficientPoints(model.FreezeCost, e.progress.TotalPoints)
	}
	next := e.progress.Clone()
	next.TotalPoints -= model.FreezeCost
	next.FreezeCount++
	return e.commit(ctx, "redeem freeze", next)
}

// ApplyFreeze spends one token to cover yesterday when exactly one day was
// missed, so that today's check-in continues the streak. It is never called
// by CheckIn; clients invoke it before checking in.
func (e *StreakEngine) ApplyFreeze(ctx context.Context, today model.Day) (model.UserProgress, error) {
	if !today.Valid() {
		return model.UserProgress{}, apperror.ValidationFailed("date", "not a calendar date")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.progress
	if p.FreezeCount == 0 {
		return p.Clone(), apperror.ValidationFailed("freezeCount", "you have no streak freezes")
	}
	if p.LastCheckInDate == "" || p.LastCheckInDate != today.AddDays(-2) {
		return p.Clone(), apperror.ValidationFailed("lastCheckInDate", "a freeze only covers a single missed day")
	}

	next := p.Clone()
	next.StreakDates = append(next.StreakDates, today.Prev())
	next.LastCheckInDate = today.Prev()
	next.CurrentStreak++
	next.FreezeCount--
	return e.commit(ctx, "apply freeze", next)
}

// AwardPoints adds n points, capped at model.MaxPoints.
func (e *StreakEngine) AwardPoints(ctx context.Context, n int) (model.UserProgress, error) {
	if n < 0 {
		return model.UserProgress{}, apperror.ValidationFailed("points", "award must not be negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.progress.Clone()
	next.TotalPoints = model.ClampPoints(next.TotalPoints + n)
	if next.TotalPoints == e.progress.TotalPoints {
		return next, nil
	}
	return e.commit(ctx, "award points", next)
}

// Replace installs progress that changed elsewhere, such as a remote
// document update. Nothing is written back.
func (e *StreakEngine) Replace(p model.UserProgress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = p.Clone()
}

// Markers renders the current streak.
func (e *StreakEngine) Markers() model.MarkedDates {
	return RenderMarkers(e.Snapshot().StreakDates)
}

// commit must be called with mu held.
func (e *StreakEngine) commit(ctx context.Context, op string, next model.UserProgress) (model.UserProgress, error) {
	e.progress = next
	if err := e.store.SaveProgress(ctx, next); err != nil {
		e.logger.Error("failed to persist progress",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return next.Clone(), apperror.PersistenceFailed("progress", err)
	}
	return next.Clone(), nil
}

// nextCheckIn applies the streak transition for a check-in on today.
// Callers have already handled a repeat check-in on the same day.
func nextCheckIn(p model.UserProgress, today model.Day) model.UserProgress {
	next := p.Clone()
	if p.LastCheckInDate != "" && p.LastCheckInDate == today.Prev() {
		next.StreakDates = append(next.StreakDates, today)
		next.CurrentStreak++
	} else {
		// first check-in, a gap, or a clock that went backwards
		next.StreakDates = []model.Day{today}
		next.CurrentStreak = 1
	}
	next.LastCheckInDate = today
	next.TotalPoints = model.ClampPoints(next.TotalPoints + model.CheckInPoints)
	return next
}

// RenderMarkers highlights exactly the given streak days.
func RenderMarkers(streakDates []model.Day) model.MarkedDates {
	marked := make(model.MarkedDates, len(streakDates))
	for _, d := range streakDates {
		marked[d] = model.Marker{Selected: true, SelectedColor: model.StreakColor}
	}
	return marked
}
