// Package journal records form lifecycle events in SQLite.
//
// A Journal attaches to a form's event bus and appends every event it sees
// to an append-only table, stamped with a logical clock. Reading back a
// form's events returns them in the order they were emitted, which makes a
// journal usable as a trace of a scenario run.
//
// # Ordering
//
// All queries order by seq, then by row id. Wall time is never stored, so
// two runs of the same scenario against fresh journals produce identical
// timelines.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single connection, SQLite allows one writer at a time
//
// Payloads are stored as canonical JSON.
package journal
