// Package logging assembles structured slog loggers and formatting helpers used
// across sidecar.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers so every create, merge, rename, and
// delete decision is logged with the same decision_type, decision_result, and
// decision_reason keys whether or not the run is a dry run. The package also
// provides a no-op logger for tests.
package logging
