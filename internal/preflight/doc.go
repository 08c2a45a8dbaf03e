// Package preflight checks the filesystem before a run touches anything.
//
// The CLI calls RunAll once per invocation: the scanned root must be a
// readable directory, and the state directory that holds run locks must be
// writable. A failed check is an argument-level error and the run never
// starts.
package preflight
