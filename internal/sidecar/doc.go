// Package sidecar decides how extracted image metadata lands on disk.
//
// Structured payloads (those carrying a JSON object) become a .json sidecar that
// accumulates a processing history across runs; everything else becomes a
// plain .txt sidecar of "key: value" lines. The Reconciler never writes
// anything in dry-run mode but still reports the decision it would have made.
package sidecar
