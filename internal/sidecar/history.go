package sidecar

import (
	"encoding/json"
	"errors"
	"time"
)

// DefaultHistoryKey is the record key that holds processing history.
const DefaultHistoryKey = "post_training_processing"

// Run identifies one invocation of the tool. Every sidecar written during the
// run receives one Entry built from it.
type Run struct {
	ID      string
	Tool    string
	Version string
	Command string
}

// Entry is a history element written by this tool. Histories may also hold
// foreign entries (for example bare strings); those are kept verbatim.
type Entry struct {
	Tool        string `json:"tool"`
	Version     string `json:"version,omitempty"`
	RunID       string `json:"run_id"`
	ProcessedAt string `json:"processed_at"`
	Command     string `json:"command,omitempty"`
}

func newEntry(run Run, at time.Time) Entry {
	return Entry{
		Tool:        run.Tool,
		Version:     run.Version,
		RunID:       run.ID,
		ProcessedAt: at.UTC().Format(time.RFC3339),
		Command:     run.Command,
	}
}

// History is the ordered list of processing events stored in a record.
type History []json.RawMessage

var errHistoryNotArray = errors.New("history is not a JSON array")

func parseHistory(raw json.RawMessage) (History, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out History
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errHistoryNotArray
	}
	return out, nil
}

// Contains reports whether an entry with runID is already present.
func (h History) Contains(runID string) bool {
	if runID == "" {
		return false
	}
	for _, raw := range h {
		var tagged struct {
			RunID string `json:"run_id"`
		}
		if json.Unmarshal(raw, &tagged) != nil {
			continue
		}
		if tagged.RunID == runID {
			return true
		}
	}
	return false
}

func (h History) append(entry Entry) (History, error) {
	raw, err := marshalNoEscape(entry)
	if err != nil {
		return nil, err
	}
	out := make(History, 0, len(h)+1)
	out = append(out, h...)
	return append(out, raw), nil
}

func (h History) marshal() (json.RawMessage, error) {
	if h == nil {
		h = History{}
	}
	return marshalNoEscape([]json.RawMessage(h))
}
