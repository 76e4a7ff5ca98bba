package cli

import (
	"fmt"

	"github.com/sakif/waypoint/internal/model"
)

// CheckInCmd records today's check-in. A date other than today is accepted
// on the command line the way the calendar accepts taps, and ignored.
type CheckInCmd struct {
	Date string `arg:"" optional:"" help:"Day to check in (YYYY-MM-DD, today, yesterday). Only today counts."`
}

func (cmd *CheckInCmd) Run(ctx *Context) error {
	day, err := ctx.parseDay(cmd.Date)
	if err != nil {
		return err
	}

	before := ctx.Tracker.Streak.Snapshot()
	p, accepted, err := ctx.Tracker.Streak.PressDay(ctx, day)
	if err != nil {
		return saveFailed(err)
	}
	switch {
	case !accepted:
		ctx.printf("Only today (%s) can be checked in.\n", ctx.Clock.Today())
	case before.LastCheckInDate == p.LastCheckInDate:
		ctx.printf("Already checked in today.\n")
	default:
		ctx.printf("Checked in! +%d points\n", p.TotalPoints-before.TotalPoints)
	}
	printProgress(ctx, p)
	return nil
}

type FreezeCmd struct {
	Redeem FreezeRedeemCmd `cmd:"" help:"Trade points for a streak freeze."`
	Apply  FreezeApplyCmd  `cmd:"" help:"Spend a freeze to cover yesterday."`
}

type FreezeRedeemCmd struct{}

func (cmd *FreezeRedeemCmd) Run(ctx *Context) error {
	p, err := ctx.Tracker.Streak.RedeemFreeze(ctx)
	if err != nil {
		return saveFailed(err)
	}
	ctx.printf("Redeemed a streak freeze for %d points.\n", model.FreezeCost)
	printProgress(ctx, p)
	return nil
}

type FreezeApplyCmd struct{}

func (cmd *FreezeApplyCmd) Run(ctx *Context) error {
	p, err := ctx.Tracker.Streak.ApplyFreeze(ctx, ctx.Clock.Today())
	if err != nil {
		return saveFailed(err)
	}
	ctx.printf("Freeze applied to %s.\n", ctx.Clock.Today().Prev())
	printProgress(ctx, p)
	return nil
}

// StatusCmd prints progress, the month calendar and upcoming events.
type StatusCmd struct {
	Month string `help:"Any day in the month to show (default today)." placeholder:"DATE"`
}

func (cmd *StatusCmd) Run(ctx *Context) error {
	anchor, err := ctx.parseDay(cmd.Month)
	if err != nil {
		return err
	}

	printProgress(ctx, ctx.Tracker.Streak.Snapshot())
	ctx.printf("\n%s%s\n", RenderMonth(anchor, ctx.Clock.Today(), ctx.Tracker.Calendar()), legend())

	today := ctx.Clock.Today()
	var upcoming []model.Event
	for _, ev := range ctx.Tracker.Events.Events() {
		if ev.Date >= today {
			upcoming = append(upcoming, ev)
		}
	}
	if len(upcoming) > 0 {
		ctx.printf("\nUpcoming\n")
		for _, ev := range upcoming {
			ctx.printf("  %s %s  %s\n", ev.Date, ev.Time, ev.Name)
		}
	}
	return nil
}

// ResetCmd clears the local profile.
type ResetCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation."`
}

func (cmd *ResetCmd) Run(ctx *Context) error {
	if !cmd.Yes {
		return fmt.Errorf("reset deletes all local progress and events; rerun with --yes")
	}
	if err := ctx.Store.Reset(ctx); err != nil {
		return err
	}
	ctx.Tracker.Streak.Replace(model.UserProgress{})
	ctx.Tracker.Events.Replace(nil)
	ctx.Logger.Info("local profile reset")
	ctx.printf("Local progress and events cleared.\n")
	return nil
}

func printProgress(ctx *Context, p model.UserProgress) {
	last := "never"
	if p.LastCheckInDate != "" {
		last = p.LastCheckInDate.String()
	}
	ctx.printf("%s%d/%d\n", labelStyle.Render("Points"), p.TotalPoints, model.MaxPoints)
	ctx.printf("%s%d (last check-in %s)\n", labelStyle.Render("Streak"), p.CurrentStreak, last)
	ctx.printf("%s%d\n", labelStyle.Render("Freezes"), p.FreezeCount)
}
