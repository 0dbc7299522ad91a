package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Logger builds the process logger for component (e.g. "api", "gateway",
// "admin"). Text goes to stderr; when LOG_FILE is set, JSON records are
// appended there as well. The returned func closes the file.
func (c Config) Logger(component string) (*slog.Logger, func() error) {
	return NewLogger(os.Stderr, c.LogFile, c.LogLevel, component)
}

// NewLogger writes text records to console and, if logFile is non-empty,
// JSON records to logFile. An unopenable file is reported on console and
// skipped.
func NewLogger(console io.Writer, logFile string, level slog.Level, component string) (*slog.Logger, func() error) {
	if logFile == "" {
		return newLogger(level, component, console, nil), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := newLogger(level, component, console, nil)
		logger.Warn("log file unavailable, logging to console only", "file", logFile, "error", err)
		return logger, func() error { return nil }
	}
	return newLogger(level, component, console, file), file.Close
}

func newLogger(level slog.Level, component string, console, jsonOut io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(console, opts)
	if jsonOut != nil {
		h = slogmulti.Fanout(h, slog.NewJSONHandler(jsonOut, opts))
	}
	logger := slog.New(h)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}
