package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/worklets/internal/layout"
)

// Scenario drives an engine through a sequence of steps and checks the
// resulting trace and values.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// EngineID is the engine id recorded in the trace. Defaults to
	// "harness-<name>".
	EngineID string `yaml:"engine_id,omitempty"`

	// FrameIntervalMs is how far a frame step without a timestamp advances
	// the frame clock. Defaults to 16.
	FrameIntervalMs float64 `yaml:"frame_interval_ms,omitempty"`

	// Setup is JavaScript evaluated in the JS runtime before the steps.
	Setup string `yaml:"setup,omitempty"`

	// Views holds the view props served to view_prop steps, by view tag.
	Views map[int]map[string]any `yaml:"views,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation on the engine. Op selects which fields apply.
type Step struct {
	Op string `yaml:"op"`

	// Name labels the mutable, worklet, handler or mapper a step creates,
	// or refers to one created earlier.
	Name string `yaml:"name,omitempty"`

	// Value is the initial value (mutable), new value (set), expected value
	// (expect) or layout config (configure_layout).
	Value any `yaml:"value,omitempty"`

	// Source is worklet source (worklet), a script (js) or an expression
	// evaluated in the JS runtime (expect).
	Source  string         `yaml:"source,omitempty"`
	Closure map[string]any `yaml:"closure,omitempty"`

	// Worklet names the worklet a step uses.
	Worklet string   `yaml:"worklet,omitempty"`
	Inputs  []string `yaml:"inputs,omitempty"`
	Outputs []string `yaml:"outputs,omitempty"`

	Event     string   `yaml:"event,omitempty"`
	Emitter   *int     `yaml:"emitter,omitempty"`
	Timestamp *float64 `yaml:"timestamp,omitempty"`
	Payload   any      `yaml:"payload,omitempty"`
	Raw       string   `yaml:"raw,omitempty"`

	// Count repeats a frame step.
	Count int `yaml:"count,omitempty"`

	Tag           int    `yaml:"tag,omitempty"`
	Finished      bool   `yaml:"finished,omitempty"`
	AnimationType string `yaml:"animation_type,omitempty"`
	SharedTag     string `yaml:"shared_tag,omitempty"`
	Prop          string `yaml:"prop,omitempty"`
	Callback      string `yaml:"callback,omitempty"`

	// ExpectError is the runtime error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpJS              = "js"
	OpMutable         = "mutable"
	OpWorklet         = "worklet"
	OpSet             = "set"
	OpRelease         = "release"
	OpRegister        = "register"
	OpUnregister      = "unregister"
	OpEvent           = "event"
	OpRawEvent        = "raw_event"
	OpStartMapper     = "start_mapper"
	OpStopMapper      = "stop_mapper"
	OpScheduleUI      = "schedule_ui"
	OpRequestFrame    = "request_frame"
	OpFrame           = "frame"
	OpDrainJS         = "drain_js"
	OpLayoutStart     = "layout_start"
	OpLayoutStop      = "layout_stop"
	OpLayoutCancel    = "layout_cancel"
	OpConfigureLayout = "configure_layout"
	OpViewProp        = "view_prop"
	OpExpect          = "expect"
)

// Assertion validates the final trace or values.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_value.
	Type string `yaml:"type"`

	// Kind and Subject select trace events (trace_contains, trace_count).
	// An empty Subject matches any subject.
	Kind    string `yaml:"kind,omitempty"`
	Subject string `yaml:"subject,omitempty"`

	// Data is a subset match on the event data (trace_contains).
	Data map[string]any `yaml:"data,omitempty"`

	// Kinds is the expected order of first occurrences (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count"`

	// Name and Value check a mutable's final value (final_value).
	Name  string `yaml:"name,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalValue    = "final_value"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that step
// names are defined before they are used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.FrameIntervalMs < 0 {
		return fmt.Errorf("frame_interval_ms must be non-negative")
	}

	defined := map[string]string{}
	for i, step := range s.Steps {
		if err := validateStep(step, defined); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(assertion); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, defined map[string]string) error {
	need := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%s name is required", kind)
		}
		if got, ok := defined[name]; !ok || got != kind {
			return fmt.Errorf("%s %q is not defined", kind, name)
		}
		return nil
	}
	define := func(kind string) error {
		if step.Name == "" {
			return fmt.Errorf("name is required")
		}
		if _, dup := defined[step.Name]; dup {
			return fmt.Errorf("name %q is already defined", step.Name)
		}
		defined[step.Name] = kind
		return nil
	}
	needAll := func(kind string, names []string) error {
		for _, name := range names {
			if err := need(kind, name); err != nil {
				return err
			}
		}
		return nil
	}

	switch step.Op {
	case OpJS:
		if step.Source == "" {
			return fmt.Errorf("source is required")
		}
	case OpMutable:
		return define(OpMutable)
	case OpWorklet:
		if step.Source == "" {
			return fmt.Errorf("source is required")
		}
		return define(OpWorklet)
	case OpSet, OpRelease:
		return need(OpMutable, step.Name)
	case OpRegister:
		if step.Event == "" {
			return fmt.Errorf("event is required")
		}
		if err := need(OpWorklet, step.Worklet); err != nil {
			return err
		}
		return define(OpRegister)
	case OpUnregister:
		return need(OpRegister, step.Name)
	case OpEvent:
		if step.Event == "" {
			return fmt.Errorf("event is required")
		}
	case OpRawEvent:
		if step.Raw == "" {
			return fmt.Errorf("raw is required")
		}
	case OpStartMapper:
		if err := need(OpWorklet, step.Worklet); err != nil {
			return err
		}
		if err := needAll(OpMutable, step.Inputs); err != nil {
			return err
		}
		if err := needAll(OpMutable, step.Outputs); err != nil {
			return err
		}
		return define(OpStartMapper)
	case OpStopMapper:
		return need(OpStartMapper, step.Name)
	case OpScheduleUI, OpRequestFrame:
		return need(OpWorklet, step.Worklet)
	case OpFrame:
		if step.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case OpDrainJS, OpLayoutStop, OpLayoutCancel:
	case OpLayoutStart:
		return need(OpMutable, step.Name)
	case OpConfigureLayout:
		if _, err := layout.ParseAnimationType(step.AnimationType); err != nil {
			return err
		}
	case OpViewProp:
		if step.Prop == "" {
			return fmt.Errorf("prop is required")
		}
		if !strings.HasPrefix(step.Callback, "$") {
			return fmt.Errorf("callback must be a $reference")
		}
	case OpExpect:
		if step.Source == "" {
			return need(OpMutable, step.Name)
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for trace_contains")
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("kinds list is required for trace_order")
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	case AssertFinalValue:
		if a.Name == "" {
			return fmt.Errorf("name is required for final_value")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
