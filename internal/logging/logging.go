package logging

import (
	"io"
	"log/slog"
	"time"

	"signdetect/internal/config"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a config level onto slog. The second result is false for
// unrecognised values, which fall back to info.
func ParseLevel(level config.LoggingLevel) (slog.Level, bool) {
	switch level {
	case config.LoggingLevelDebug:
		return slog.LevelDebug, true
	case config.LoggingLevelInfo:
		return slog.LevelInfo, true
	case config.LoggingLevelWarn:
		return slog.LevelWarn, true
	case config.LoggingLevelError:
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func New(w io.Writer, level config.LoggingLevel) *slog.Logger {
	lvl, ok := ParseLevel(level)

	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
	}))

	if !ok {
		logger.Warn("No valid logging level provided. Defaulting to info", "provided value", level)
	}

	return logger
}
