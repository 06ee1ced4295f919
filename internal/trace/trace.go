// Package trace records what an engine did, in order, as a flat list of
// events. Scenario runs compare the list against golden files and can
// persist it to a SQLite trace store.
package trace

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/worklets/internal/value"
)

// Kind names a traced occurrence.
type Kind string

const (
	KindMutableCreate     Kind = "mutable.create"
	KindMutableRelease    Kind = "mutable.release"
	KindHandlerRegister   Kind = "handler.register"
	KindHandlerUnregister Kind = "handler.unregister"
	KindHandlerError      Kind = "handler.error"
	KindEvent             Kind = "event"
	KindMapperStart       Kind = "mapper.start"
	KindMapperStop        Kind = "mapper.stop"
	KindMapperError       Kind = "mapper.error"
	KindFrame             Kind = "frame"
	KindJSCall            Kind = "js.call"
	KindWorkletError      Kind = "worklet.error"
	KindLayoutStart       Kind = "layout.start"
	KindLayoutProgress    Kind = "layout.progress"
	KindLayoutEnd         Kind = "layout.end"
	KindLayoutCancel      Kind = "layout.cancel"
	KindLayoutConfigure   Kind = "layout.configure"
	KindViewProp          Kind = "view.prop"
)

// Event is one traced occurrence. Seq is assigned by the Recorder and is
// strictly increasing within one recording.
type Event struct {
	Seq     int64          `json:"seq"`
	Kind    Kind           `json:"kind"`
	Subject string         `json:"subject"`
	Data    map[string]any `json:"data,omitempty"`
}

// Tracer receives engine events. Implementations must be safe for
// concurrent use: both threads record.
type Tracer interface {
	Record(kind Kind, subject string, data map[string]any)
}

// Nop discards everything.
type Nop struct{}

// Record implements Tracer.
func (Nop) Record(Kind, string, map[string]any) {}

// Recorder keeps events in memory.
type Recorder struct {
	seq atomic.Int64

	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements Tracer.
func (r *Recorder) Record(kind Kind, subject string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		Seq:     r.seq.Add(1),
		Kind:    kind,
		Subject: subject,
		Data:    data,
	})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset drops all events and restarts numbering.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.seq.Store(0)
}

// Canonical renders events as canonical JSON, one event per line.
func Canonical(events []Event) ([]byte, error) {
	var out []byte
	for _, ev := range events {
		line, err := MarshalEvent(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}

// MarshalEvent renders one event as canonical JSON.
func MarshalEvent(ev Event) ([]byte, error) {
	m := map[string]any{
		"seq":     ev.Seq,
		"kind":    string(ev.Kind),
		"subject": ev.Subject,
	}
	if len(ev.Data) > 0 {
		m["data"] = ev.Data
	}
	data, err := value.MarshalCanonical(m)
	if err != nil {
		return nil, fmt.Errorf("trace event %d (%s): %w", ev.Seq, ev.Kind, err)
	}
	return data, nil
}
