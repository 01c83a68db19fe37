package plog

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// ConsoleTimeFormat is the timestamp layout of console output.
const ConsoleTimeFormat = "2006-01-02 15:04:05"

// Options controls the handlers built by Setup.
type Options struct {
	// Stdout and Stderr receive console output. They default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// NoColor disables ANSI colors. Colors are always off when the writer is not a terminal.
	NoColor bool
	// File receives the durable "timestamp - message" log. Nil disables it.
	File io.Writer
	// Level is the initial minimum level.
	Level slog.Level
	// Quiet limits console output to NOTICE and above. File output is unaffected.
	Quiet bool
}

func consoleOptions() Options {
	return Options{Stdout: os.Stdout, Stderr: os.Stderr, Level: LevelInfo}
}

// isTerminal reports whether w is a file attached to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newTintHandler(w io.Writer, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:       levelVar,
		TimeFormat:  ConsoleTimeFormat,
		NoColor:     noColor || !isTerminal(w),
		ReplaceAttr: replaceLevelName,
	})
}

func newConsoleHandler(opts Options) slog.Handler {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return NewQuietHandler(NewLevelDispatchHandler(
		newTintHandler(opts.Stdout, opts.NoColor),
		newTintHandler(opts.Stderr, opts.NoColor),
	))
}

// Setup builds the console (and optionally file) logger, installs it as the
// global logger and returns it so it can be injected where needed.
func Setup(opts Options) *slog.Logger {
	SetLevel(opts.Level)
	SetQuiet(opts.Quiet)
	var handler slog.Handler = newConsoleHandler(opts)
	if opts.File != nil {
		handler = NewMultiHandler(handler, NewLineHandler(opts.File, levelVar))
	}
	logger := slog.New(handler)
	SetLogger(logger)
	return logger
}
