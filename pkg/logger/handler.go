package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// NewHandler returns the JSON handler installed as the process-wide slog default.
// With nil opts the level is taken from log.level.
func NewHandler(opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: ParseLevel(viper.GetString("log.level"))}
	}

	return slog.NewJSONHandler(os.Stdout, opts)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
