package model

import (
	"cmp"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"

	"github.com/gosimple/slug"
)

// Event is one calendar entry.
//
// ID is derived from date, name and time, so adding the same triple twice
// overwrites rather than duplicates. ChatID keys the event's chat thread and
// is derived from date and name only.
type Event struct {
	ID            string `json:"id"`
	Date          Day    `json:"date"`
	Time          string `json:"time"`
	Name          string `json:"name"`
	IsFriendEvent bool   `json:"isFriendEvent"`
	ChatID        string `json:"chatId"`
	OwnerID       string `json:"ownerId,omitempty"`
}

// EventID derives the event key from the date and a digest of name and
// time. The name is length-prefixed so no two distinct triples share an
// input. Keys are URL-safe.
func EventID(date Day, name, time string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%s%s", len(name), name, time))
	return fmt.Sprintf("%s-%x", date, sum[:10])
}

// ChatIDFor returns the URL-safe chat key for an event.
func ChatIDFor(date Day, name string) string {
	return slug.Make(string(date) + " " + name)
}

// NewEvent builds an own event with derived identifiers.
func NewEvent(date Day, name, time string) (Event, error) {
	name = strings.TrimSpace(name)
	time = strings.TrimSpace(time)
	if name == "" {
		return Event{}, fmt.Errorf("event name is required")
	}
	if !date.Valid() {
		return Event{}, fmt.Errorf("event date %q is not a calendar date", date)
	}
	return Event{
		ID:     EventID(date, name, time),
		Date:   date,
		Time:   time,
		Name:   name,
		ChatID: ChatIDFor(date, name),
	}, nil
}

// CompareEvents orders by date, then lexically by time. Name breaks the
// remaining ties so the order is total.
func CompareEvents(a, b Event) int {
	return cmp.Or(
		cmp.Compare(a.Date, b.Date),
		cmp.Compare(a.Time, b.Time),
		cmp.Compare(a.Name, b.Name),
	)
}

func SortEvents(events []Event) {
	slices.SortStableFunc(events, CompareEvents)
}

// NormalizeEvents validates events read from a store. Legacy dates are
// rewritten and identifiers are re-derived; own events never carry the
// friend flag. The result is sorted.
func NormalizeEvents(stored []Event) ([]Event, error) {
	out := make([]Event, 0, len(stored))
	seen := make(map[string]int, len(stored))
	for i, e := range stored {
		date, err := ParseDay(string(e.Date))
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		ev, err := NewEvent(date, e.Name, e.Time)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		ev.OwnerID = e.OwnerID
		if j, dup := seen[ev.ID]; dup {
			out[j] = ev
			continue
		}
		seen[ev.ID] = len(out)
		out = append(out, ev)
	}
	SortEvents(out)
	return out, nil
}
