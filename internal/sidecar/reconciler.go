package sidecar

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"sidecar/internal/fileutil"
	"sidecar/internal/logging"
	"sidecar/internal/metadata"
)

// ErrMalformedSidecar is returned when an existing .json sidecar cannot be merged.
var ErrMalformedSidecar = errors.New("existing sidecar is not a valid JSON object")

const sidecarMode = 0o644

// Format is the sidecar file type.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "txt"
)

// Action is the reconciliation decision for one image.
type Action string

const (
	ActionCreate    Action = "create"
	ActionMerge     Action = "merge"
	ActionOverwrite Action = "overwrite"
	ActionSkip      Action = "skip"
)

// Decision reasons reported in logs and the run journal.
const (
	ReasonNoSidecar        = "no_sidecar"
	ReasonExistingJSON     = "existing_json"
	ReasonForceJSON        = "force_json"
	ReasonAlreadyProcessed = "already_processed"
	ReasonPlainText        = "plain_text"
)

// Options controls reconciliation behavior.
type Options struct {
	DryRun     bool
	ForceJSON  bool
	HistoryKey string
	Indent     int
}

// Result describes the decision made for one image.
type Result struct {
	Image   string
	Target  string
	Format  Format
	Action  Action
	Reason  string
	DryRun  bool
	History int
}

// Reconciler writes sidecars for extracted payloads.
type Reconciler struct {
	opts   Options
	run    Run
	logger *slog.Logger
	now    func() time.Time
	// planned holds the bytes a dry run would have written, keyed by target,
	// so later images in the same run see them as existing sidecars.
	planned map[string][]byte
}

// NewReconciler builds a reconciler that stamps history entries with run.
func NewReconciler(opts Options, run Run, logger *slog.Logger) *Reconciler {
	if opts.HistoryKey == "" {
		opts.HistoryKey = DefaultHistoryKey
	}
	return &Reconciler{
		opts:    opts,
		run:     run,
		logger:  logging.NewComponentLogger(logger, "sidecar"),
		now:     time.Now,
		planned: make(map[string][]byte),
	}
}

// Reconcile writes (or, in dry-run, plans) the sidecar for imagePath.
func (r *Reconciler) Reconcile(imagePath string, payload metadata.Payload) (Result, error) {
	if body, _, ok := payload.Structured(); ok {
		return r.reconcileJSON(imagePath, body)
	}
	return r.reconcileText(imagePath, payload)
}

func (r *Reconciler) reconcileJSON(imagePath string, body []byte) (Result, error) {
	result := Result{
		Image:  imagePath,
		Target: fileutil.ReplaceExt(imagePath, ".json"),
		Format: FormatJSON,
		DryRun: r.opts.DryRun,
	}

	fresh, err := ParseDocument(body)
	if err != nil {
		return result, fmt.Errorf("parse metadata json: %w", err)
	}

	existing, err := r.load(result.Target)
	if err != nil {
		return result, err
	}

	historySource := fresh
	if existing != nil {
		historySource = existing
	}
	rawHistory, _ := historySource.Get(r.opts.HistoryKey)
	history, err := parseHistory(rawHistory)
	if err != nil {
		if existing != nil {
			return result, fmt.Errorf("%s: %w: %w", result.Target, ErrMalformedSidecar, err)
		}
		// A payload that carries a non-array under the history key loses it.
		history = nil
	}

	var record *Document
	switch {
	case existing == nil:
		record = fresh.Clone()
		result.Action, result.Reason = ActionCreate, ReasonNoSidecar
	case history.Contains(r.run.ID) && !r.opts.ForceJSON:
		result.Action, result.Reason = ActionSkip, ReasonAlreadyProcessed
		result.History = len(history)
		r.logDecision(result)
		return result, nil
	case r.opts.ForceJSON:
		record = fresh.Clone()
		result.Action, result.Reason = ActionOverwrite, ReasonForceJSON
	default:
		record = merge(existing, fresh, r.opts.HistoryKey)
		result.Action, result.Reason = ActionMerge, ReasonExistingJSON
	}

	history, err = history.append(newEntry(r.run, r.now()))
	if err != nil {
		return result, fmt.Errorf("encode history entry: %w", err)
	}
	rawHistory, err = history.marshal()
	if err != nil {
		return result, fmt.Errorf("encode history: %w", err)
	}
	record.SetFirst(r.opts.HistoryKey, rawHistory)
	result.History = len(history)

	data, err := record.Marshal(r.opts.Indent)
	if err != nil {
		return result, err
	}
	if err := r.write(result, data); err != nil {
		return result, err
	}
	r.logDecision(result)
	return result, nil
}

// load reads an existing .json sidecar. A missing file yields nil.
func (r *Reconciler) load(path string) (*Document, error) {
	data, ok := r.planned[path]
	if !ok {
		var err error
		data, err = os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read existing sidecar: %w", err)
		}
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrMalformedSidecar, err)
	}
	return doc, nil
}

// merge overlays fresh onto existing: keys in both take the fresh value and keep
// their existing position, keys only in existing stay, new keys are appended.
func merge(existing, fresh *Document, historyKey string) *Document {
	out := existing.Clone()
	for _, key := range fresh.Keys() {
		if key == historyKey {
			continue
		}
		value, _ := fresh.Get(key)
		out.Set(key, value)
	}
	return out
}

func (r *Reconciler) reconcileText(imagePath string, payload metadata.Payload) (Result, error) {
	result := Result{
		Image:  imagePath,
		Target: fileutil.ReplaceExt(imagePath, ".txt"),
		Format: FormatText,
		Action: ActionCreate,
		Reason: ReasonPlainText,
		DryRun: r.opts.DryRun,
	}
	_, exists := r.planned[result.Target]
	if !exists {
		var err error
		exists, err = fileutil.Exists(result.Target)
		if err != nil {
			return result, fmt.Errorf("check existing sidecar: %w", err)
		}
	}
	if exists {
		result.Action = ActionOverwrite
	}
	if err := r.write(result, payload.Text()); err != nil {
		return result, err
	}
	r.logDecision(result)
	return result, nil
}

func (r *Reconciler) write(result Result, data []byte) error {
	if r.opts.DryRun {
		r.planned[result.Target] = data
		return nil
	}
	if err := fileutil.WriteFileAtomic(result.Target, data, sidecarMode); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func (r *Reconciler) logDecision(result Result) {
	attrs := logging.DecisionAttrs("sidecar", string(result.Action), result.Reason)
	attrs = append(attrs,
		logging.String(logging.FieldPath, result.Image),
		logging.String(logging.FieldTarget, result.Target),
		logging.Bool(logging.FieldDryRun, result.DryRun),
	)
	msg := "sidecar written"
	switch {
	case result.Action == ActionSkip:
		msg = "sidecar skipped"
	case result.DryRun:
		msg = "sidecar planned"
	}
	r.logger.Info(msg, logging.Args(attrs...)...)
}
