package plog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
)

// Custom levels. NOTICE sits between INFO and WARN and is used for messages
// that should survive quiet mode, like the end-of-cycle result.
const (
	LevelDebug  = slog.LevelDebug
	LevelInfo   = slog.LevelInfo
	LevelNotice = slog.Level(2)
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
)

var levelNames = map[slog.Level]string{
	LevelNotice: "NOTICE",
}

// levelVar is shared by every handler built by this package so SetLevel
// takes effect on console and file output at once.
var levelVar = new(slog.LevelVar)

var defaultLogger atomic.Pointer[slog.Logger]
var quietMode atomic.Bool // Use an atomic bool for safe concurrent reads.

func init() {
	defaultLogger.Store(slog.New(newConsoleHandler(consoleOptions())))
}

// replaceLevelName renders custom levels by name in text output.
func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			if name, ok := levelNames[lvl]; ok {
				a.Value = slog.StringValue(name)
			}
		}
	}
	return a
}

// SetOutput allows redirecting the logger's output, primarily for testing.
func SetOutput(w io.Writer) {
	// When redirecting output for tests, ensure quiet mode is off
	// so that all levels are written to the provided writer.
	quietMode.Store(false)
	defaultLogger.Store(slog.New(NewQuietHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceLevelName,
	}))))
}

// SetLogger installs l as the global logger.
func SetLogger(l *slog.Logger) {
	defaultLogger.Store(l)
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	return defaultLogger.Load()
}

// SetLevel sets the minimum level for all handlers created by this package.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// LevelFromString maps a level name to a slog.Level. Unknown names map to INFO.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetQuiet enables or disables quiet mode. In quiet mode console output
// drops records below NOTICE; the durable log file keeps everything.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuiet returns true if the global logger is in quiet mode.
func IsQuiet() bool {
	return quietMode.Load()
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Load().Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Load().Info(msg, args...)
}

// Notice logs a message that is shown even in quiet mode.
func Notice(msg string, args ...any) {
	defaultLogger.Load().Log(context.Background(), LevelNotice, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Load().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Load().Error(msg, args...)
}
