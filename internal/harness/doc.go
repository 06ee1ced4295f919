// Package harness runs YAML scenarios against a real engine.
//
// Each scenario gets a fresh engine with two goja runtimes: a JS runtime,
// where worklets are authored and remote functions live, and a UI runtime,
// where worklets run. JS-thread work queues on a call loop that the
// scenario drains explicitly, and frames are ticked from a deterministic
// frame clock, so the engine trace is identical across runs.
//
// # Scenario Format
//
//	name: scroll_drives_width
//	description: "A scroll handler feeds a mapper"
//	setup: |
//	  var log = [];
//	  function report(v) { log.push(v); }
//	steps:
//	  - op: mutable
//	    name: progress
//	    value: 0
//	  - op: worklet
//	    name: onScroll
//	    source: "function (e) { sv.value = e.y; report(e.y); }"
//	    closure: { sv: $progress, report: $report }
//	  - op: register
//	    name: h1
//	    event: onScroll
//	    worklet: onScroll
//	  - op: frame
//	  - op: event
//	    event: onScroll
//	    payload: { y: 0.5 }
//	  - op: drain_js
//	  - op: expect
//	    name: progress
//	    value: 0.5
//	assertions:
//	  - type: trace_contains
//	    kind: event
//	    subject: onScroll
//	  - type: trace_order
//	    kinds: [handler.register, event]
//	  - type: trace_count
//	    kind: frame
//	    count: 1
//	  - type: final_value
//	    name: progress
//	    value: 0.5
//
// Closure members and callbacks written as "$name" refer to a mutable or
// worklet created by an earlier step, or else to a global function of the
// JS runtime, which is captured as a remote function.
//
// # Golden Traces
//
// RunWithGolden compares the canonical trace (one JSON object per line)
// with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
