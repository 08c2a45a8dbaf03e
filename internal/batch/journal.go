package batch

import (
	"context"
	"log/slog"

	"sidecar/internal/journal"
	"sidecar/internal/logging"
)

// recorder writes outcomes to the journal. A nil recorder (or one whose store
// failed mid-run) silently drops writes after logging the first failure.
type recorder struct {
	store  *journal.Store
	logger *slog.Logger
}

func (r *Runner) startJournal(ctx context.Context, logger *slog.Logger, summary *Summary, opts Options) *recorder {
	if r.journal == nil || opts.DryRun {
		return nil
	}
	err := r.journal.BeginRun(context.WithoutCancel(ctx), journal.Run{
		ID:        summary.RunID,
		StartedAt: summary.StartedAt,
		Root:      summary.Root,
		Command:   opts.Command,
		DryRun:    opts.DryRun,
	})
	if err != nil {
		logging.WarnWithContext(logger, "run journal unavailable", "journal_begin_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check journal.path"),
			logging.String(logging.FieldImpact, "run is not recorded in history"),
		)
		return nil
	}
	return &recorder{store: r.journal, logger: logger}
}

func (rec *recorder) event(ctx context.Context, runID string, o Outcome) {
	if rec == nil || rec.store == nil {
		return
	}
	ev := journal.Event{
		RunID:  runID,
		Path:   o.Path,
		Target: o.Target,
		Action: o.Action,
		Reason: o.Reason,
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	if err := rec.store.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
		rec.fail("journal_event_failed", err)
	}
}

func (rec *recorder) finish(ctx context.Context, summary *Summary) {
	if rec == nil || rec.store == nil {
		return
	}
	if err := rec.store.FinishRun(context.WithoutCancel(ctx), summary.RunID, summary.FinishedAt, summary.journalCounts()); err != nil {
		rec.fail("journal_finish_failed", err)
	}
}

func (rec *recorder) fail(eventType string, err error) {
	logging.WarnWithContext(rec.logger, "run journal write failed", eventType,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check journal.path"),
		logging.String(logging.FieldImpact, "history for this run is incomplete"),
	)
	rec.store = nil
}
