// Command waypoint is the signed-out local mode: check-ins, freezes and
// events kept in a SQLite file on this machine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	_ "time/tzdata"

	"github.com/alecthomas/kong"

	"github.com/sakif/waypoint/internal/cli"
)

var CLI struct {
	Version  kong.VersionFlag
	DB       string `help:"Local database path." type:"path" default:"~/.local/share/waypoint/waypoint.db" env:"WAYPOINT_DB"`
	LogDir   string `help:"Log directory." type:"path" default:"~/.local/share/waypoint/logs"`
	Debug    bool   `help:"Log at debug level, also to stderr."`
	Today    string `help:"Pretend today is this day (YYYY-MM-DD)." placeholder:"DATE"`
	Timezone string `help:"IANA time zone that decides when a day starts." env:"APP_TIMEZONE"`

	Checkin cli.CheckInCmd `cmd:"" help:"Check in for today."`
	Freeze  cli.FreezeCmd  `cmd:"" help:"Redeem or apply streak freezes."`
	Status  cli.StatusCmd  `cmd:"" help:"Show points, streak and calendar." default:"1"`
	Event   cli.EventCmd   `cmd:"" help:"Manage calendar events."`
	Reset   cli.ResetCmd   `cmd:"" help:"Delete all local progress and events."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("waypoint"),
		kong.Description("Daily check-in streaks and events, offline."),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := cli.Open(ctx, cli.Options{
		DBPath:   CLI.DB,
		LogDir:   CLI.LogDir,
		Debug:    CLI.Debug,
		Today:    CLI.Today,
		Timezone: CLI.Timezone,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = kctx.Run(app)
	app.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
