package plog

import (
	"context"
	"log/slog"
)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and NOTICE go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// NewLevelDispatchHandler creates a handler splitting records at LevelWarn.
func NewLevelDispatchHandler(stdout, stderr slog.Handler) *LevelDispatchHandler {
	return &LevelDispatchHandler{stdoutHandler: stdout, stderrHandler: stderr}
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

// QuietHandler drops records below NOTICE while quiet mode is on.
type QuietHandler struct {
	next slog.Handler
}

// NewQuietHandler wraps next with the quiet mode filter.
func NewQuietHandler(next slog.Handler) *QuietHandler {
	return &QuietHandler{next: next}
}

func (h *QuietHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < LevelNotice && quietMode.Load() {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *QuietHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < LevelNotice && quietMode.Load() {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *QuietHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &QuietHandler{next: h.next.WithAttrs(attrs)}
}

func (h *QuietHandler) WithGroup(name string) slog.Handler {
	return &QuietHandler{next: h.next.WithGroup(name)}
}

// MultiHandler forwards every record to all handlers that accept its level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a handler fanning out to handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle returns the last error reported by any handler.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if e := handler.Handle(ctx, r.Clone()); e != nil {
			err = e
		}
	}
	return err
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return NewMultiHandler(handlers...)
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return NewMultiHandler(handlers...)
}
