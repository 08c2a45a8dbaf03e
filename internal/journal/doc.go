// Package journal records runs and their per-file decisions in SQLite.
//
// The journal is optional. When enabled, every non-dry run opens the database,
// inserts a runs row, appends one events row per decision, and stamps the
// finish time and counts when the batch completes. `sidecar history` reads it
// back.
package journal
