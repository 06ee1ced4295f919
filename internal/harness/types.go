package harness

import (
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect step and assertion held.
	Pass bool `json:"pass"`

	// EngineID is the id of the engine the scenario ran on.
	EngineID string `json:"engine_id"`

	// Trace contains every engine event in order.
	Trace []trace.Event `json:"trace"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Values holds the final value of each named mutable.
	Values map[string]value.Value `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []trace.Event{},
		Errors: []string{},
		Values: make(map[string]value.Value),
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
