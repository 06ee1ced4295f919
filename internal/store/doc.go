// Package store provides SQLite-backed durable storage for engine traces.
//
// A session is one engine lifetime, keyed by the engine id. Each session
// owns an append-only list of trace events ordered by their seq number.
//
// # Ordering
//
//   - Events are ordered by seq, the recorder's logical clock, never by wall time
//   - All reads use ORDER BY seq ASC so replays produce identical output
//   - Sessions are listed in insertion order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Event data is stored as canonical JSON so byte comparison of rows is
// meaningful.
package store
