// Package harness runs form scenarios.
//
// A scenario names a form definition (a file or an inline block), a list of
// steps that drive the form the way a user would, and assertions over the
// outcome. Every run uses deterministic node IDs and a logical clock, so the
// final snapshot can be compared byte for byte against a golden file:
//
//	go test ./internal/harness -update
//
// regenerates the golden files.
//
// # Steps
//
//   - set / input: write a field value (input also validates with the
//     form's trigger)
//   - set_values: write several values with a strategy
//   - push / pop / insert / remove / move: array operations; row templates
//     are expanded afterwards
//   - focus / blur, validate, submit, reset
//   - remove_field: remove a node and everything under it
//   - wait: sleep for a duration, then wait for pending data-source loads
//
// # Assertions
//
//   - value: the value at a path
//   - state: a subset of a node's state flags
//   - errors: the error messages of a field
//   - event_count / event_order: the recorded lifecycle events
//   - diagnostics: the reaction diagnostics, by code
package harness
