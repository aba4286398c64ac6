// Package logging sets up slog with a tint handler.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"
)

// ParseLevel maps LOG_LEVEL values; unknown input means info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Init installs the default logger. debug forces LevelDebug.
func Init(level string, debug bool) *slog.Logger {
	lvl := ParseLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
	})
	return slog.Default()
}

// New returns a tint logger writing to w, for callers that need their own sink.
func New(w io.Writer, level slog.Level, color bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !color,
	}))
}

// MaskHex shortens a secret-ish hex string to its ends.
func MaskHex(h string) string {
	if len(h) <= 10 {
		return "***"
	}
	return h[:6] + "…" + h[len(h)-4:]
}
