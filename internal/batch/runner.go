package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sidecar/internal/cleanup"
	"sidecar/internal/config"
	"sidecar/internal/filename"
	"sidecar/internal/fileutil"
	"sidecar/internal/journal"
	"sidecar/internal/logging"
	"sidecar/internal/metadata"
	"sidecar/internal/runlock"
	"sidecar/internal/sidecar"
)

// Options are the per-invocation switches.
type Options struct {
	Root         string
	Recursive    bool
	DryRun       bool
	FixFilenames bool
	ForceJSON    bool
	Clean        bool
	// Command is the reconstructed command line stored in history entries.
	Command string
}

// Runner executes batch runs against a configuration.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	extractor *metadata.Extractor
	journal   *journal.Store
	version   string
	newRunID  func() string
	now       func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithJournal records runs in store. A nil store disables journaling.
func WithJournal(store *journal.Store) Option {
	return func(r *Runner) { r.journal = store }
}

// WithVersion sets the tool version stamped into history entries.
func WithVersion(version string) Option {
	return func(r *Runner) { r.version = version }
}

// WithRunID overrides run ID generation.
func WithRunID(fn func() string) Option {
	return func(r *Runner) { r.newRunID = fn }
}

// NewRunner builds a Runner.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "batch"),
		extractor: metadata.NewExtractor(logger),
		version:   "dev",
		newRunID:  uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every image under opts.Root. The returned error is non-nil only
// when the run could not start (lock held, bad root) or was cancelled; per-file
// failures are reported on the Summary.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	lock, err := runlock.Acquire(r.cfg.LockDir(), root)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	summary := &Summary{
		RunID:     r.newRunID(),
		Root:      root,
		DryRun:    opts.DryRun,
		StartedAt: r.now(),
	}
	logger := r.logger.With(logging.String(logging.FieldRunID, summary.RunID))
	logger.Info("run started",
		logging.String(logging.FieldPath, root),
		logging.Bool("recursive", opts.Recursive),
		logging.Bool(logging.FieldDryRun, opts.DryRun),
		logging.Bool("fix_filenames", opts.FixFilenames),
		logging.Bool("force_json", opts.ForceJSON),
		logging.Bool("clean", opts.Clean),
	)

	rec := r.startJournal(ctx, logger, summary, opts)

	reconciler := sidecar.NewReconciler(sidecar.Options{
		DryRun:     opts.DryRun,
		ForceJSON:  opts.ForceJSON,
		HistoryKey: r.cfg.Sidecar.HistoryKey,
		Indent:     r.cfg.Sidecar.Indent,
	}, sidecar.Run{
		ID:      summary.RunID,
		Tool:    r.cfg.Sidecar.ToolName,
		Version: r.version,
		Command: opts.Command,
	}, logger)

	images, failures := r.scanImages(root, opts.Recursive)
	for _, f := range failures {
		r.record(ctx, rec, summary, f)
	}
	summary.Counts.Images = len(images)

	for _, image := range images {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		for _, outcome := range r.processImage(logger, reconciler, image, opts) {
			r.record(ctx, rec, summary, outcome)
		}
	}

	if opts.Clean && !summary.Cancelled {
		r.clean(ctx, logger, rec, summary, root, opts)
		if ctx.Err() != nil {
			summary.Cancelled = true
		}
	}

	summary.FinishedAt = r.now()
	rec.finish(ctx, summary)
	logger.Info("run finished",
		logging.Int("images", summary.Counts.Images),
		logging.Int("created", summary.Counts.Created),
		logging.Int("merged", summary.Counts.Merged),
		logging.Int("overwritten", summary.Counts.Overwritten),
		logging.Int("skipped", summary.Counts.Skipped),
		logging.Int("renamed", summary.Counts.Renamed),
		logging.Int("orphans_removed", summary.Counts.OrphansRemoved),
		logging.Int("errors", summary.Counts.Errors),
		logging.Duration("duration", summary.Duration()),
		logging.Bool("cancelled", summary.Cancelled),
	)

	if summary.Cancelled {
		return summary, fmt.Errorf("run interrupted: %w", context.Cause(ctx))
	}
	return summary, nil
}

// processImage runs the per-image pipeline and returns every outcome it produced.
func (r *Runner) processImage(logger *slog.Logger, reconciler *sidecar.Reconciler, image string, opts Options) []Outcome {
	var outcomes []Outcome

	path := image
	if opts.FixFilenames {
		var renames []Outcome
		path, renames = r.renamePair(logger, image, opts.DryRun)
		outcomes = append(outcomes, renames...)
	}

	payload, err := r.extractor.Extract(path)
	if err != nil {
		logging.WarnWithContext(logger, "metadata extraction failed", "extract_failed",
			logging.String(logging.FieldPath, path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the file is a valid image"),
		)
		return append(outcomes, Outcome{Path: path, Stage: StageExtract, Action: ActionError, Err: err})
	}
	if payload.Empty() {
		attrs := logging.DecisionAttrs("sidecar", "skip", ActionNoMetadata)
		attrs = append(attrs, logging.String(logging.FieldPath, path))
		logger.Info("no embedded metadata", logging.Args(attrs...)...)
		return append(outcomes, Outcome{Path: path, Stage: StageExtract, Action: ActionNoMetadata, Reason: "empty_payload"})
	}

	result, err := reconciler.Reconcile(path, payload)
	if err != nil {
		hint := "check directory permissions"
		if errors.Is(err, sidecar.ErrMalformedSidecar) {
			hint = "fix or delete the existing sidecar, or rerun with --force-json"
		}
		logging.ErrorWithContext(logger, "sidecar reconciliation failed", "sidecar_failed",
			logging.String(logging.FieldPath, path),
			logging.String(logging.FieldTarget, result.Target),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
		)
		return append(outcomes, Outcome{Path: path, Target: result.Target, Stage: StageSidecar, Action: ActionError, Err: err})
	}
	return append(outcomes, Outcome{
		Path:   path,
		Target: result.Target,
		Stage:  StageSidecar,
		Action: string(result.Action),
		Reason: result.Reason,
	})
}

// renamePair normalizes the image name and renames existing sidecars with it so
// they stay matched. Every target is checked before anything moves: if the image
// or any companion would collide, nothing is renamed. It returns the path later
// stages should use: the original path when the pair was not renamed or the run
// is a dry run.
func (r *Runner) renamePair(logger *slog.Logger, image string, dryRun bool) (string, []Outcome) {
	plan, err := filename.Rename(image, true)
	if err != nil {
		return image, []Outcome{renameFailure(logger, image, plan, err)}
	}
	if plan.Action == filename.ActionUnchanged {
		return image, nil
	}

	var companions []string
	for _, ext := range []string{".json", ".txt"} {
		companion := fileutil.ReplaceExt(image, ext)
		exists, err := fileutil.Exists(companion)
		if err != nil || !exists {
			continue
		}
		cplan, err := filename.Rename(companion, true)
		if err != nil {
			failure := renameFailure(logger, companion, cplan, err)
			failure.Reason = "companion_conflict"
			return image, []Outcome{failure}
		}
		companions = append(companions, companion)
	}

	res, err := filename.Rename(image, dryRun)
	if err != nil {
		return image, []Outcome{renameFailure(logger, image, res, err)}
	}
	logRename(logger, res)
	outcomes := []Outcome{{Path: image, Target: res.Target, Stage: StageRename, Action: ActionRename, Reason: "float_token_padded"}}
	for _, companion := range companions {
		cres, err := filename.Rename(companion, dryRun)
		if err != nil {
			outcomes = append(outcomes, renameFailure(logger, companion, cres, err))
			continue
		}
		logRename(logger, cres)
		outcomes = append(outcomes, Outcome{Path: companion, Target: cres.Target, Stage: StageRename, Action: ActionRename, Reason: "follows_image"})
	}

	if dryRun {
		return image, outcomes
	}
	return res.Target, outcomes
}

func renameFailure(logger *slog.Logger, path string, res filename.Result, err error) Outcome {
	logging.WarnWithContext(logger, "filename normalization skipped", "rename_conflict",
		logging.String(logging.FieldPath, path),
		logging.String(logging.FieldTarget, res.Target),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "rename or remove the file occupying the normalized name"),
		logging.String(logging.FieldImpact, "file keeps its original name"),
	)
	action := ActionError
	if res.Action == filename.ActionConflict {
		action = ActionConflict
	}
	return Outcome{Path: path, Target: res.Target, Stage: StageRename, Action: action, Err: err}
}

func logRename(logger *slog.Logger, res filename.Result) {
	attrs := logging.DecisionAttrs("rename", string(res.Action), "float_token_padded")
	attrs = append(attrs,
		logging.String(logging.FieldPath, res.Source),
		logging.String(logging.FieldTarget, res.Target),
		logging.Bool(logging.FieldDryRun, res.DryRun),
	)
	logger.Info("filename normalized", logging.Args(attrs...)...)
}

func (r *Runner) clean(ctx context.Context, logger *slog.Logger, rec *recorder, summary *Summary, root string, opts Options) {
	result := cleanup.Clean(ctx, root, cleanup.Options{
		Recursive:       opts.Recursive,
		DryRun:          opts.DryRun,
		ImageExtensions: r.cfg.Scan.ImageExtensions,
	}, logger)
	for _, path := range result.Removed {
		r.record(ctx, rec, summary, Outcome{Path: path, Stage: StageCleanup, Action: ActionDelete, Reason: "no_matching_image"})
	}
	for _, path := range result.RemovedDirs {
		r.record(ctx, rec, summary, Outcome{Path: path, Stage: StageCleanup, Action: ActionRemoveDir, Reason: "emptied_by_cleanup"})
	}
	for _, e := range result.Errors {
		r.record(ctx, rec, summary, Outcome{Path: e.Path, Stage: StageCleanup, Action: ActionError, Err: e.Error})
	}
}

func (r *Runner) record(ctx context.Context, rec *recorder, summary *Summary, o Outcome) {
	summary.add(o)
	rec.event(ctx, summary.RunID, o)
}
