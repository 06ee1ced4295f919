package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Seq, ev.Kind, ev.Subject)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertFinalValue:
		return assertFinalValue(result.Values, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matchesEvent reports whether ev has the assertion's kind and, when set,
// its subject.
func matchesEvent(ev trace.Event, a Assertion) bool {
	if string(ev.Kind) != a.Kind {
		return false
	}
	return a.Subject == "" || ev.Subject == a.Subject
}

// assertTraceContains checks that an event with the kind, subject and data
// (subset match) was recorded.
func assertTraceContains(events []trace.Event, a Assertion) error {
	for _, ev := range events {
		if matchesEvent(ev, a) && matchData(ev.Data, a.Data) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s %s with data %v", a.Kind, a.Subject, a.Data),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

// assertTraceOrder checks that the first occurrences of the kinds appear in
// the given order. Other events may appear in between.
func assertTraceOrder(events []trace.Event, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range events {
		if _, seen := positions[string(ev.Kind)]; !seen {
			positions[string(ev.Kind)] = i + 1
		}
	}

	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    events,
			}
		}
	}

	for i := 1; i < len(a.Kinds); i++ {
		prev, curr := a.Kinds[i-1], a.Kinds[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: events,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(events []trace.Event, a Assertion) error {
	count := 0
	for _, ev := range events {
		if matchesEvent(ev, a) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s %s", a.Count, a.Kind, a.Subject),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    events,
		}
	}
	return nil
}

// assertFinalValue checks a named mutable's value after the last step.
func assertFinalValue(values map[string]value.Value, a Assertion) error {
	got, ok := values[a.Name]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("mutable %s", a.Name),
			Actual:   "not defined",
		}
	}

	want, err := value.FromGo(a.Value)
	if err != nil {
		return err
	}
	if !value.Equal(want, got) {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %s", a.Name, describe(want)),
			Actual:   describe(got),
		}
	}
	return nil
}

// matchData reports whether every expected key is present in actual with a
// value of the same canonical form.
func matchData(actual, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok {
			return false
		}
		wantJSON, err := value.MarshalCanonical(want)
		if err != nil {
			return false
		}
		gotJSON, err := value.MarshalCanonical(got)
		if err != nil {
			return false
		}
		if !bytes.Equal(wantJSON, gotJSON) {
			return false
		}
	}
	return true
}
