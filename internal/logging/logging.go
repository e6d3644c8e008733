// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level maps a LOG_LEVEL/ENV style value to a slog level. Unknown values
// fall back to def.
func Level(value string, def slog.Level) slog.Level {
	switch value {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// New builds a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Init installs the default logger for the CLI. Peers stay quiet unless
// LOG_LEVEL asks otherwise so log lines don't tear through the progress UI.
func Init() {
	level := slog.LevelError
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = Level(l, level)
	}
	slog.SetDefault(New(os.Stderr, level))
}

// InitServer installs the default logger for the relay server: info by
// default, debug when env is development, LOG_LEVEL overriding both.
func InitServer(env string) *slog.Logger {
	level := Level(env, slog.LevelInfo)
	if level == slog.LevelError {
		level = slog.LevelInfo
	}
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = Level(l, level)
	}

	logger := New(os.Stderr, level)
	slog.SetDefault(logger)
	return logger
}
