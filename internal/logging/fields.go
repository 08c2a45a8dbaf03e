package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies the run that emitted the log line.
	FieldRunID = "run_id"
	// FieldPath is the file or directory a log line is about.
	FieldPath = "path"
	// FieldTarget is the destination path of a write or rename.
	FieldTarget = "target"
	// FieldDryRun marks decisions that were reported but not applied.
	FieldDryRun = "dry_run"
	// FieldEventType is a stable machine-readable name for the event.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the kind of decision (sidecar, rename, cleanup).
	FieldDecisionType = "decision_type"
	// FieldDecisionResult is the chosen action (create, merge, skip, ...).
	FieldDecisionResult = "decision_result"
	// FieldDecisionReason explains why the action was chosen.
	FieldDecisionReason = "decision_reason"
)
