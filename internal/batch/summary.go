package batch

import (
	"errors"
	"time"

	"sidecar/internal/filename"
	"sidecar/internal/journal"
	"sidecar/internal/sidecar"
)

// Stage names the pipeline step an outcome came from.
type Stage string

const (
	StageScan    Stage = "scan"
	StageRename  Stage = "rename"
	StageExtract Stage = "extract"
	StageSidecar Stage = "sidecar"
	StageCleanup Stage = "cleanup"
)

// Outcome actions that are not sidecar decisions.
const (
	ActionNoMetadata = "no_metadata"
	ActionRename     = "rename"
	ActionConflict   = "conflict"
	ActionDelete     = "delete"
	ActionRemoveDir  = "remove_dir"
	ActionError      = "error"
)

// Outcome is one recorded decision or failure.
type Outcome struct {
	Path   string
	Target string
	Stage  Stage
	Action string
	Reason string
	Err    error
}

// Counts are per-action totals for a run.
type Counts struct {
	Images         int
	Created        int
	Merged         int
	Overwritten    int
	Skipped        int
	NoMetadata     int
	Renamed        int
	Conflicts      int
	OrphansRemoved int
	DirsRemoved    int
	Errors         int
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	RunID      string
	Root       string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Counts     Counts
	Outcomes   []Outcome
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Failed returns the outcomes that carry an error.
func (s *Summary) Failed() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch {
	case o.Err != nil && errors.Is(o.Err, filename.ErrConflict):
		s.Counts.Conflicts++
	case o.Err != nil:
		s.Counts.Errors++
	}
	if o.Err != nil {
		return
	}
	switch o.Action {
	case string(sidecar.ActionCreate):
		s.Counts.Created++
	case string(sidecar.ActionMerge):
		s.Counts.Merged++
	case string(sidecar.ActionOverwrite):
		s.Counts.Overwritten++
	case string(sidecar.ActionSkip):
		s.Counts.Skipped++
	case ActionNoMetadata:
		s.Counts.NoMetadata++
	case ActionRename:
		s.Counts.Renamed++
	case ActionDelete:
		s.Counts.OrphansRemoved++
	case ActionRemoveDir:
		s.Counts.DirsRemoved++
	}
}

func (s *Summary) journalCounts() journal.Counts {
	return journal.Counts{
		Images:         s.Counts.Images,
		Created:        s.Counts.Created,
		Merged:         s.Counts.Merged,
		Overwritten:    s.Counts.Overwritten,
		Skipped:        s.Counts.Skipped,
		Renamed:        s.Counts.Renamed,
		OrphansRemoved: s.Counts.OrphansRemoved,
		Errors:         s.Counts.Errors + s.Counts.Conflicts,
	}
}
