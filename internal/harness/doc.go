// Package harness runs scenario tests against a live simulation world.
//
// A scenario compiles a CUE content package, expands its roots under the
// Game, drives the world through a list of steps and then checks the
// recorded event trace, the final simulant state and the actualized
// frames.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: button_clicks
//	description: "Pressing the button counts clicks"
//	content: ../content/hud      # CUE package dir, relative to this file
//	tables: ../tables            # optional data tables
//	roots: [Hud]                 # optional, default every content root
//	setup:
//	  - set: {Clicks: 0}
//	    subject: Hud/Gui/Button
//	flow:
//	  - publish: Press
//	    subject: Hud/Gui/Button
//	  - tick: 1
//	  - signal: Click
//	    subject: Hud/Gui/Missing
//	    expect_error: INVALID_ADDRESS
//	assertions:
//	  - type: trace_contains
//	    event: Change/Clicks
//	    subject: Hud/Gui/Button
//	    data: {value: 1}
//	  - type: final_state
//	    subject: Hud/Gui/Button
//	    expect: {Clicks: 1}
//
// Each step carries exactly one action: tick, publish, signal, set or
// destroy. Destroy only schedules; the simulant goes away at the end of
// the next tick. Setup steps must succeed. A failing flow step without a
// matching expect_error fails the scenario and stops the flow.
//
// # Assertion Types
//
//   - trace_contains: an event with the name (and subject, data subset) was published
//   - trace_order: events appear in the given order, not necessarily adjacent
//   - trace_count: an event appears exactly count times
//   - final_state: a simulant exists (or not) with the expected properties
//   - submitted: a frame holds a matching actualize submission
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite store as the event log and a
// sequence name generator, so identical scenarios produce identical
// traces. Golden snapshots store the trace as canonical JSON under
// testdata/golden.
package harness
