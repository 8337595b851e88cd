// Package schedule holds the pure data model of the watcher: schedule items,
// the ordered snapshot a single poll produces, and the fingerprint used to
// decide whether a snapshot differs from the last one that was announced.
package schedule
