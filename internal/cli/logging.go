package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger writes to a rotating waypoint.log under dir. With debug set it
// also writes to stderr and lowers the level to debug. The returned closer
// closes the log file.
func NewLogger(dir string, debug bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "waypoint.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	level := log.WarnLevel
	var w io.Writer = file
	if debug {
		level = log.DebugLevel
		w = io.MultiWriter(os.Stderr, file)
	}

	handler := log.NewWithOptions(w, log.Options{
		ReportCaller:    debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "waypoint",
	})
	return slog.New(handler), file, nil
}
