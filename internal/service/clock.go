package service

import (
	"time"

	"github.com/sakif/waypoint/internal/model"
)

// Clock tells the services which calendar day it is.
type Clock interface {
	Today() model.Day
}

// LocalClock reads the wall clock in Location, or in time.Local when
// Location is nil.
type LocalClock struct {
	Location *time.Location
}

func (c LocalClock) Today() model.Day {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return model.DayOf(time.Now().In(loc))
}

// FixedClock always reports the same day. Tests and the CLI's --today flag
// use it.
type FixedClock model.Day

func (c FixedClock) Today() model.Day {
	return model.Day(c)
}
