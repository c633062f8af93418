// Package store provides the SQLite trace log of engine runs.
//
// The log is append-only:
//   - Runs: one record per engine run, keyed by run id
//   - Writes: every status write the modifier attempted, applied or not
//   - Fires: every handler call the dispatcher made
//
// # Ordering
//
// Records are positioned by (cycle, seq): cycle is the engine's logical
// clock, seq counts records within a cycle. Writes and fires share the
// seq space, so a merged trace reads in the order things happened.
// Wall-clock time is never stored.
//
// # Idempotency
//
// UNIQUE(run_id, cycle, seq) on writes and fires, with ON CONFLICT DO
// NOTHING inserts. Re-recording a cycle leaves the first copy in place.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: writes and fires must reference a run
package store
