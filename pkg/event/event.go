// Package event defines the notifications a mirror run emits and the sinks
// that receive them.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// Kind classifies an Event.
type Kind int

const (
	Copied Kind = iota
	Deleted
	Error
	CycleCompleted
)

var kindNames = map[Kind]string{
	Copied:         "copied",
	Deleted:        "deleted",
	Error:          "error",
	CycleCompleted: "cycle_completed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// CycleCompletedMessage is the text of a CycleCompleted event.
const CycleCompletedMessage = "Synchronization completed successfully."

// Event is an immutable record of one outcome. Construct it with the New*
// functions so Message is always populated.
type Event struct {
	Time    time.Time
	Kind    Kind
	Path    string // relative path, empty for cycle-level events
	Message string
	Err     error
}

// NewCopied reports a successful copy of rel.
func NewCopied(at time.Time, rel string) Event {
	return Event{Time: at, Kind: Copied, Path: rel, Message: "File copied: " + rel}
}

// NewDeleted reports a successful deletion of rel.
func NewDeleted(at time.Time, rel string) Event {
	return Event{Time: at, Kind: Deleted, Path: rel, Message: "File deleted: " + rel}
}

// NewError reports err. rel may be empty for failures not tied to a file.
func NewError(at time.Time, rel, msg string, err error) Event {
	text := msg
	if err != nil {
		text = fmt.Sprintf("%s: %v", msg, err)
	}
	return Event{Time: at, Kind: Error, Path: rel, Message: text, Err: err}
}

// NewCycleCompleted reports the end of a cycle that was not aborted.
func NewCycleCompleted(at time.Time) Event {
	return Event{Time: at, Kind: CycleCompleted, Message: CycleCompletedMessage}
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
}

// LogSink writes events through a slog.Logger, using the event's own
// timestamp. Errors are logged at ERROR level, cycle completion at NOTICE
// so it stays on a quiet console, everything else at INFO.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func levelFor(k Kind) slog.Level {
	switch k {
	case Error:
		return plog.LevelError
	case CycleCompleted:
		return plog.LevelNotice
	default:
		return plog.LevelInfo
	}
}

func (s *LogSink) Emit(e Event) {
	ctx := context.Background()
	level := levelFor(e.Kind)
	h := s.logger.Handler()
	if !h.Enabled(ctx, level) {
		return
	}
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	// A failing log destination has nowhere else to report to.
	_ = h.Handle(ctx, slog.NewRecord(at, level, e.Message, 0))
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events of kind k.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Paths returns the paths of the recorded events of kind k.
func (r *Recorder) Paths(k Kind) []string {
	var paths []string
	for _, e := range r.Events() {
		if e.Kind == k {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Statically assert that our types implement the interface.
var _ Sink = (*LogSink)(nil)
var _ Sink = (*Recorder)(nil)
