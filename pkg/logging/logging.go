// Package logging builds the structured loggers used by the dashboard
// server and background monitors.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console logger with RFC3339 timestamps at the given level.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(lvl).With().Timestamp().Logger()
}

// NewFile builds a logger that writes JSON lines to path in addition to
// the console. Falls back to console-only if the file cannot be opened.
func NewFile(level, path string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.New(console).Level(lvl).With().Timestamp().Logger()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return zerolog.New(console).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(io.MultiWriter(console, f)).Level(lvl).With().Timestamp().Logger()
}
