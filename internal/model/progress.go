package model

import (
	"errors"
	"fmt"
	"slices"
)

const (
	// MaxPoints caps the point balance. Awards past the cap are discarded.
	MaxPoints = 1000

	CheckInPoints    = 10
	CompletionPoints = 10

	// FreezeCost is the price of one streak-freeze token.
	FreezeCost = 50
)

// UserProgress is the streak and point state of one account, or of the
// anonymous local profile when signed out.
//
// CurrentStreak always equals the length of the contiguous run at the end of
// StreakDates, and LastCheckInDate always equals its last element.
type UserProgress struct {
	TotalPoints     int   `json:"totalPoints"`
	CurrentStreak   int   `json:"currentStreak"`
	StreakDates     []Day `json:"streakDates"`
	LastCheckInDate Day   `json:"lastCheckInDate,omitempty"`
	FreezeCount     int   `json:"freezeCount"`
}

// Clone returns a copy that shares no memory with p.
func (p UserProgress) Clone() UserProgress {
	p.StreakDates = slices.Clone(p.StreakDates)
	if p.StreakDates == nil {
		p.StreakDates = []Day{}
	}
	return p
}

// ClampPoints bounds n to [0, MaxPoints].
func ClampPoints(n int) int {
	return max(0, min(n, MaxPoints))
}

// ContiguousSuffix returns how many trailing entries of dates form a run of
// consecutive calendar days. dates must be sorted ascending.
func ContiguousSuffix(dates []Day) int {
	if len(dates) == 0 {
		return 0
	}
	n := 1
	for i := len(dates) - 1; i > 0; i-- {
		if dates[i-1] != dates[i].Prev() {
			break
		}
		n++
	}
	return n
}

// Validate checks the invariants of p.
func (p UserProgress) Validate() error {
	if p.TotalPoints < 0 || p.TotalPoints > MaxPoints {
		return fmt.Errorf("totalPoints %d out of range [0, %d]", p.TotalPoints, MaxPoints)
	}
	if p.FreezeCount < 0 {
		return fmt.Errorf("freezeCount %d is negative", p.FreezeCount)
	}
	for i, d := range p.StreakDates {
		if !d.Valid() {
			return fmt.Errorf("streakDates[%d] %q is not a calendar date", i, d)
		}
		if i > 0 && d <= p.StreakDates[i-1] {
			return fmt.Errorf("streakDates not strictly increasing at %d", i)
		}
	}
	if want := ContiguousSuffix(p.StreakDates); p.CurrentStreak != want {
		return fmt.Errorf("currentStreak %d does not match streakDates (want %d)", p.CurrentStreak, want)
	}
	if len(p.StreakDates) == 0 {
		if p.LastCheckInDate != "" {
			return errors.New("lastCheckInDate set without streakDates")
		}
		return nil
	}
	if p.LastCheckInDate != p.StreakDates[len(p.StreakDates)-1] {
		return fmt.Errorf("lastCheckInDate %q is not the last streak date", p.LastCheckInDate)
	}
	return nil
}

// StoredProgress is the loosely typed shape progress takes in a store. Older
// clients only kept a streak counter and a last date, so StreakDates may be
// missing.
type StoredProgress struct {
	TotalPoints int
	Streak      int
	LastDate    string
	StreakDates []string
	Freezes     int
}

// NormalizeProgress turns stored values into a valid UserProgress. Legacy
// dates are rewritten, a missing date list is rebuilt from the streak counter,
// and a balance above the cap is clamped. Anything else that breaks the
// invariants is an error.
func NormalizeProgress(s StoredProgress) (UserProgress, error) {
	if s.TotalPoints < 0 {
		return UserProgress{}, fmt.Errorf("totalPoints %d is negative", s.TotalPoints)
	}
	if s.Freezes < 0 {
		return UserProgress{}, fmt.Errorf("streakFreezes %d is negative", s.Freezes)
	}
	if s.Streak < 0 {
		return UserProgress{}, fmt.Errorf("streak %d is negative", s.Streak)
	}

	var dates []Day
	for _, raw := range s.StreakDates {
		d, err := ParseDay(raw)
		if err != nil {
			return UserProgress{}, err
		}
		dates = append(dates, d)
	}

	var last Day
	if s.LastDate != "" {
		d, err := ParseDay(s.LastDate)
		if err != nil {
			return UserProgress{}, err
		}
		last = d
	}

	if len(dates) == 0 && last != "" {
		n := max(s.Streak, 1)
		if last.AddDays(-(n - 1)) == "" {
			return UserProgress{}, fmt.Errorf("streak %d before %s reaches past year %d", s.Streak, last, minYear)
		}
		dates = make([]Day, 0, n)
		for i := n - 1; i >= 0; i-- {
			dates = append(dates, last.AddDays(-i))
		}
	}

	p := UserProgress{
		TotalPoints: ClampPoints(s.TotalPoints),
		StreakDates: dates,
		FreezeCount: s.Freezes,
	}
	if p.StreakDates == nil {
		p.StreakDates = []Day{}
	}
	p.CurrentStreak = ContiguousSuffix(dates)
	if len(dates) > 0 {
		p.LastCheckInDate = dates[len(dates)-1]
	}
	if err := p.Validate(); err != nil {
		return UserProgress{}, err
	}
	return p, nil
}
