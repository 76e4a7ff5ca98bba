// Package cli implements the signed-out local mode of Waypoint as kong
// commands. Progress and events live in the "local" namespace of the SQLite
// key-value store, the same data the app keeps on device while no account
// is signed in.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
	"github.com/sakif/waypoint/internal/repository/sqlite"
	"github.com/sakif/waypoint/internal/service"
)

// LocalNamespace is the key-value namespace of the signed-out profile.
const LocalNamespace = "local"

// Context is bound to every command's Run method.
type Context struct {
	context.Context

	Store   *repository.LocalStore
	Tracker *service.Tracker
	Clock   service.Clock
	Logger  *slog.Logger
	Out     io.Writer

	closers []io.Closer
}

// Options come from the global flags.
type Options struct {
	DBPath   string
	LogDir   string
	Debug    bool
	Today    string
	Timezone string
	Out      io.Writer
}

// Open prepares storage, logging and the local tracker.
func Open(ctx context.Context, opts Options) (*Context, error) {
	clock, err := clockFor(opts.Today, opts.Timezone)
	if err != nil {
		return nil, err
	}

	app := &Context{Context: ctx, Clock: clock, Out: opts.Out}
	if app.Out == nil {
		app.Out = os.Stdout
	}

	if opts.LogDir == "" {
		app.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger, logFile, err := NewLogger(opts.LogDir, opts.Debug)
		if err != nil {
			return nil, fmt.Errorf("cli: setting up logging: %w", err)
		}
		app.Logger = logger
		app.closers = append(app.closers, logFile)
	}

	if opts.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
			app.Close()
			return nil, fmt.Errorf("cli: creating data directory: %w", err)
		}
	}
	db, err := sqlite.New(opts.DBPath)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, db)

	app.Store = repository.NewLocalStore(db.Namespace(LocalNamespace))
	app.Tracker, err = service.NewTracker(ctx, LocalNamespace, app.Store, clock, app.Logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Logger.Debug("opened local profile",
		slog.String("db", opts.DBPath),
		slog.String("today", clock.Today().String()),
	)
	return app, nil
}

// Close releases the database and the log file.
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func clockFor(today, timezone string) (service.Clock, error) {
	if today != "" {
		d, err := model.ParseDay(today)
		if err != nil {
			return nil, fmt.Errorf("--today: %w", err)
		}
		return service.FixedClock(d), nil
	}
	if timezone == "" {
		return service.LocalClock{}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("--timezone: %w", err)
	}
	return service.LocalClock{Location: loc}, nil
}

// parseDay accepts YYYY-MM-DD, "today" or "yesterday".
func (c *Context) parseDay(s string) (model.Day, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return c.Clock.Today(), nil
	case "yesterday":
		return c.Clock.Today().Prev(), nil
	}
	d, err := model.ParseDay(s)
	if err != nil {
		return "", apperror.ValidationFailed("date", err.Error())
	}
	return d, nil
}

// resolveEventID maps a 1-based position from "event list" to an event id.
// Anything else is taken as an id.
func (c *Context) resolveEventID(arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg
	}
	events := c.Tracker.Events.Events()
	if n < 1 || n > len(events) {
		return arg
	}
	return events[n-1].ID
}

// saveFailed rewrites a persistence error for the terminal. The change was
// applied but will be gone when the process exits.
func saveFailed(err error) error {
	if errors.Is(err, apperror.ErrPersistence) {
		return fmt.Errorf("change could not be saved: %w", err)
	}
	return err
}
