package utils

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Logger provides structured, leveled logging throughout the application.
// One instance is constructed per run and handed to each component.
type Logger struct {
	sl *slog.Logger
}

// NewLogger creates a Logger writing colored, timestamped lines to stderr.
// Level is one of "debug", "info", "warn", "error" (default "info").
func NewLogger(level string) *Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: "2006-01-02 15:04:05",
	})
	return &Logger{sl: slog.New(handler)}
}

// With returns a Logger that stamps every line with the given key/value pair.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{sl: l.sl.With(key, value)}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func (l *Logger) Info(format string, args ...any) {
	l.sl.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.sl.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.sl.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.sl.Debug(fmt.Sprintf(format, args...))
}
