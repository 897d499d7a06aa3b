package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	minLevel = new(slog.LevelVar)
	logger   atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(os.Stderr, "text")
}

// ParseLevel accepts debug, info, warn(ing) and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func SetLevel(l Level) {
	minLevel.Set(l.slog())
}

// SetOutput replaces the destination. format is "json" or "text".
func SetOutput(w io.Writer, format string) {
	opts := &slog.HandlerOptions{Level: minLevel}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// Logger exposes the underlying slog logger for libraries that want one.
func Logger() *slog.Logger { return logger.Load() }

func Debug(msg string, kv ...any) {
	logger.Load().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	logger.Load().Info(msg, kv...)
}

func Warn(msg string, kv ...any) {
	logger.Load().Warn(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logger.Load().Error(msg, extended...)
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
