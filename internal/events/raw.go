package events

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/worklets/internal/value"
)

// ErrNoTarget is returned for raw events whose emitter is gone, such as events
// fired by a view that is being unmounted. Such events are ignored.
var ErrNoTarget = errors.New("raw event has no target")

// RawEvent is a native event envelope:
//
//	{"target": 12, "type": "topScroll", "timestamp": 1024.5, "payload": {...}}
//
// The payload is decoded lazily, so events nobody listens to cost one scan.
type RawEvent struct {
	Target       int
	Type         string
	Timestamp    float64
	HasTimestamp bool // the envelope carries a numeric timestamp, possibly 0
	payload      gjson.Result
}

// ParseRaw inspects a raw envelope without decoding its payload.
func ParseRaw(raw []byte) (RawEvent, error) {
	if !gjson.ValidBytes(raw) {
		return RawEvent{}, fmt.Errorf("invalid raw event: malformed JSON")
	}

	fields := gjson.GetManyBytes(raw, "target", "type", "timestamp", "payload")
	target, typ := fields[0], fields[1]

	if !target.Exists() || target.Type == gjson.Null {
		return RawEvent{}, ErrNoTarget
	}
	if target.Type != gjson.Number {
		return RawEvent{}, fmt.Errorf("invalid raw event: target must be a number, got %s", target.Type)
	}
	if typ.Type != gjson.String || typ.Str == "" {
		return RawEvent{}, fmt.Errorf("invalid raw event: type must be a non-empty string")
	}

	ts := fields[2]
	return RawEvent{
		Target:       int(target.Int()),
		Type:         typ.Str,
		Timestamp:    ts.Float(),
		HasTimestamp: ts.Type == gjson.Number,
		payload:      fields[3],
	}, nil
}

// Name returns the handler-facing event name: the type with a leading "top"
// replaced by "on" (topScroll becomes onScroll).
func (e RawEvent) Name() string {
	return EventName(e.Type)
}

// Payload decodes the payload. A missing payload is undefined.
func (e RawEvent) Payload() (value.Value, error) {
	if !e.payload.Exists() {
		return value.Undefined{}, nil
	}
	v, err := value.FromJSON([]byte(e.payload.Raw))
	if err != nil {
		return nil, fmt.Errorf("decode raw event payload: %w", err)
	}
	return v, nil
}

// EventName converts a native event type to its handler-facing name.
func EventName(eventType string) string {
	if rest, ok := strings.CutPrefix(eventType, "top"); ok {
		return "on" + rest
	}
	return eventType
}
