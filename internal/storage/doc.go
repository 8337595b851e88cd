// Package storage persists the two pieces of durable state the bot owns:
// the subscriber set and the fingerprint of the last announced snapshot.
//
// Two drivers are available:
//   - "file": a data directory with subscribers.txt (one id per line) and
//     schedule_state.txt (bare hex digest)
//   - "sqlite": a single SQLite database file (modernc.org/sqlite, no cgo)
package storage
