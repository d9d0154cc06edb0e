// Package logging builds the slog logger used by the keysafe CLI.
//
// Text output to a terminal colours the level the same way the CLI colours
// its own messages. Output to a log file is never coloured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/jmcleod/keysafe/internal/settings"
)

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// New returns a logger for s writing to stderr, or to s.LogFile when set.
// The returned close function releases the log file.
func New(s settings.Settings, stderr io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(s.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	w, closeFn := stderr, func() error { return nil }
	colour := !color.NoColor
	if s.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.LogFile), 0700); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closeFn, colour = f, f.Close, false
	}
	return slog.New(newHandler(w, s.LogFormat, level, colour)), closeFn, nil
}

func newHandler(w io.Writer, format string, level slog.Level, colour bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	if colour {
		opts.ReplaceAttr = colourLevel
	}
	return slog.NewTextHandler(w, opts)
}

func colourLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	var c *color.Color
	switch {
	case level >= slog.LevelError:
		c = color.New(color.FgRed)
	case level >= slog.LevelWarn:
		c = color.New(color.FgYellow)
	case level >= slog.LevelInfo:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgCyan)
	}
	c.EnableColor()
	return slog.String(a.Key, c.Sprint(level.String()))
}
