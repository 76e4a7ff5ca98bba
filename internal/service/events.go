package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
)

// EventStore persists one user's events and reads their friends' events.
type EventStore interface {
	LoadEvents(ctx context.Context) ([]model.Event, error)
	SaveEvents(ctx context.Context, events []model.Event) error
	// FriendEvents returns one list per friend.
	FriendEvents(ctx context.Context) ([][]model.Event, error)
}

// EventLedger owns a user's calendar events. Events are kept sorted by
// date and then time. Friend events are read-only and only cached here for
// display and for refusing completion attempts.
type EventLedger struct {
	mu      sync.Mutex
	store   EventStore
	streak  *StreakEngine
	clock   Clock
	logger  *slog.Logger
	events  []model.Event
	friends []model.Event
}

// NewEventLedger loads the stored events. Completions award points through
// streak.
func NewEventLedger(ctx context.Context, store EventStore, streak *StreakEngine, clock Clock, logger *slog.Logger) (*EventLedger, error) {
	events, err := store.LoadEvents(ctx)
	if err != nil {
		return nil, err
	}
	model.SortEvents(events)
	return &EventLedger{
		store:  store,
		streak: streak,
		clock:  clock,
		logger: logger,
		events: events,
	}, nil
}

// Events returns a copy of the user's own events in order.
func (l *EventLedger) Events() []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneEvents(l.events)
}

// AddEvent inserts an event, replacing one with the same date, name and time.
// The in-memory list changes before the write and stays changed if the
// write fails.
func (l *EventLedger) AddEvent(ctx context.Context, date model.Day, name, time string) (model.Event, error) {
	ev, err := model.NewEvent(date, name, time)
	if err != nil {
		return model.Event{}, apperror.ValidationFailed("event", err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexOf(ev.ID); i >= 0 {
		l.events[i] = ev
	} else {
		l.events = append(l.events, ev)
	}
	model.SortEvents(l.events)

	return ev, l.persist(ctx, "add event")
}

// RemoveEvent deletes an event by id. An unknown id is a no-op.
func (l *EventLedger) RemoveEvent(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return nil
	}
	l.events = slices.Delete(l.events, i, i+1)
	return l.persist(ctx, "remove event")
}

// CompleteEvent awards model.CompletionPoints for an own event dated today
// and removes it. An unknown id is a no-op that returns the current
// progress. Friend events cannot be completed; when id is not an own event
// the friend lists are reloaded to tell the two cases apart.
func (l *EventLedger) CompleteEvent(ctx context.Context, id string) (model.UserProgress, error) {
	l.mu.Lock()
	own := l.indexOf(id) >= 0
	l.mu.Unlock()
	if !own {
		return l.completeUnknown(ctx, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		// removed by a remote change in the meantime
		return l.streak.Snapshot(), nil
	}
	if l.events[i].Date != l.clock.Today() {
		return l.streak.Snapshot(), apperror.ValidationFailed("date", "only today's events can be completed")
	}

	progress, awardErr := l.streak.AwardPoints(ctx, model.CompletionPoints)
	if awardErr != nil && !errors.Is(awardErr, apperror.ErrPersistence) {
		return progress, awardErr
	}

	l.events = slices.Delete(l.events, i, i+1)
	if err := l.persist(ctx, "complete event"); err != nil {
		return progress, err
	}
	return progress, awardErr
}

func (l *EventLedger) completeUnknown(ctx context.Context, id string) (model.UserProgress, error) {
	lists, err := l.store.FriendEvents(ctx)
	if err != nil {
		return l.streak.Snapshot(), fmt.Errorf("service/events: loading friend events: %w", err)
	}

	l.mu.Lock()
	l.friends = MergeFriendEvents(nil, lists...)
	isFriend := slices.ContainsFunc(l.friends, func(e model.Event) bool { return e.ID == id })
	l.mu.Unlock()

	if isFriend {
		return l.streak.Snapshot(), apperror.Forbidden("friend events cannot be completed")
	}
	return l.streak.Snapshot(), nil
}

// Timeline returns the user's events merged with every friend's events.
// The friend events are cached for MarkedDates.
func (l *EventLedger) Timeline(ctx context.Context) ([]model.Event, error) {
	lists, err := l.store.FriendEvents(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.friends = MergeFriendEvents(nil, lists...)
	return MergeFriendEvents(l.events, lists...), nil
}

// MarkedDates puts a dot on every day with an event. A day with an own
// event uses the own colour even if friends have events too.
func (l *EventLedger) MarkedDates() model.MarkedDates {
	l.mu.Lock()
	defer l.mu.Unlock()
	return EventMarkers(l.events, l.friends)
}

// Replace installs events that changed elsewhere. Nothing is written back.
func (l *EventLedger) Replace(events []model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = cloneEvents(events)
	model.SortEvents(l.events)
}

func (l *EventLedger) indexOf(id string) int {
	return slices.IndexFunc(l.events, func(e model.Event) bool { return e.ID == id })
}

// persist must be called with mu held.
func (l *EventLedger) persist(ctx context.Context, op string) error {
	if err := l.store.SaveEvents(ctx, cloneEvents(l.events)); err != nil {
		l.logger.Error("failed to persist events",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return apperror.PersistenceFailed("events", err)
	}
	return nil
}

// MergeFriendEvents combines own events with friends' lists. Friend events
// are tagged IsFriendEvent and the result is sorted by date and time. The
// inputs are not modified.
func MergeFriendEvents(own []model.Event, friendLists ...[]model.Event) []model.Event {
	n := len(own)
	for _, l := range friendLists {
		n += len(l)
	}
	out := make([]model.Event, 0, n)
	out = append(out, own...)
	for _, l := range friendLists {
		for _, e := range l {
			e.IsFriendEvent = true
			out = append(out, e)
		}
	}
	model.SortEvents(out)
	return out
}

// EventMarkers derives calendar dots from own and friend events.
func EventMarkers(own, friends []model.Event) model.MarkedDates {
	marked := make(model.MarkedDates)
	for _, e := range friends {
		marked[e.Date] = model.Marker{Marked: true, DotColor: model.FriendEventColor}
	}
	for _, e := range own {
		marked[e.Date] = model.Marker{Marked: true, DotColor: model.EventDotColor}
	}
	return marked
}

func cloneEvents(events []model.Event) []model.Event {
	out := slices.Clone(events)
	if out == nil {
		out = []model.Event{}
	}
	return out
}
