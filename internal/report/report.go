// Package report carries progress and diagnostic events from the formatting
// core to whatever renders them. The core only emits Events; renderers decide
// about colors, terminals and encodings.
package report

import (
	"fmt"
	"log/slog"
	"sync"
)

// Level is the severity of an Event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelSuccess
	LevelWarning
	LevelError
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelSuccess:
		return "SUCCESS"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Event is one structured progress or diagnostic message.
type Event struct {
	Level   Level
	Chunk   int // 1-based chunk number, 0 when the event is not about a chunk
	Total   int // total chunks, 0 when unknown
	Message string
	Attrs   []slog.Attr
}

// Reporter receives events. Implementations must be safe for concurrent use.
type Reporter interface {
	Emit(e Event)
}

// Func adapts a function to the Reporter interface.
type Func func(Event)

// Emit calls f(e).
func (f Func) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Reporter = Func(func(Event) {})

// OrDiscard returns r, or Discard if r is nil.
func OrDiscard(r Reporter) Reporter {
	if r == nil {
		return Discard
	}
	return r
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many recorded events have the given level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Compile-time interface compliance checks.
var (
	_ Reporter = Func(nil)
	_ Reporter = (*Recorder)(nil)
)
