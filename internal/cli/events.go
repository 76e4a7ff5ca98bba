package cli

import (
	"fmt"
	"slices"

	"github.com/sakif/waypoint/internal/model"
)

type EventCmd struct {
	Add  EventAddCmd  `cmd:"" help:"Add an event."`
	Rm   EventRmCmd   `cmd:"" help:"Remove an event."`
	Done EventDoneCmd `cmd:"" help:"Complete one of today's events for points."`
	List EventListCmd `cmd:"" help:"List events." default:"1"`
}

type EventAddCmd struct {
	Date string `arg:"" help:"Day of the event (YYYY-MM-DD, today, yesterday)."`
	Name string `arg:"" help:"Event name."`
	Time string `arg:"" help:"Time of day, e.g. 09:00."`
}

func (cmd *EventAddCmd) Run(ctx *Context) error {
	day, err := ctx.parseDay(cmd.Date)
	if err != nil {
		return err
	}
	ev, err := ctx.Tracker.Events.AddEvent(ctx, day, cmd.Name, cmd.Time)
	if err != nil {
		return saveFailed(err)
	}
	ctx.printf("Added %q on %s at %s.\n", ev.Name, ev.Date, ev.Time)
	return nil
}

type EventRmCmd struct {
	ID string `arg:"" help:"Event id or its number in 'event list'."`
}

func (cmd *EventRmCmd) Run(ctx *Context) error {
	id := ctx.resolveEventID(cmd.ID)
	events := ctx.Tracker.Events.Events()
	i := slices.IndexFunc(events, func(ev model.Event) bool { return ev.ID == id })
	if i < 0 {
		ctx.printf("No event %s.\n", id)
		return nil
	}
	if err := ctx.Tracker.Events.RemoveEvent(ctx, id); err != nil {
		return saveFailed(err)
	}
	ctx.printf("Removed %q on %s.\n", events[i].Name, events[i].Date)
	return nil
}

type EventDoneCmd struct {
	ID string `arg:"" help:"Event id or its number in 'event list'."`
}

func (cmd *EventDoneCmd) Run(ctx *Context) error {
	id := ctx.resolveEventID(cmd.ID)
	if !slices.ContainsFunc(ctx.Tracker.Events.Events(), func(ev model.Event) bool { return ev.ID == id }) {
		return fmt.Errorf("no event %s", id)
	}

	before := ctx.Tracker.Streak.Snapshot()
	p, err := ctx.Tracker.Events.CompleteEvent(ctx, id)
	if err != nil {
		return saveFailed(err)
	}
	ctx.printf("Completed! +%d points (%d/%d)\n", p.TotalPoints-before.TotalPoints, p.TotalPoints, model.MaxPoints)
	return nil
}

type EventListCmd struct{}

func (cmd *EventListCmd) Run(ctx *Context) error {
	events := ctx.Tracker.Events.Events()
	if len(events) == 0 {
		ctx.printf("No events.\n")
		return nil
	}
	for i, ev := range events {
		ctx.printf("%3d  %s %s  %s\n", i+1, ev.Date, ev.Time, ev.Name)
	}
	return nil
}
