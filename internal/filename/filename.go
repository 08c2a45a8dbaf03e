// Package filename normalizes floating-point tokens embedded in file names.
package filename

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"sidecar/internal/fileutil"
)

// ErrConflict is returned when the normalized name is already taken.
var ErrConflict = errors.New("normalized name already exists")

var floatToken = regexp.MustCompile(`\d+\.\d+`)

// Action describes what Rename decided.
type Action string

const (
	ActionUnchanged Action = "unchanged"
	ActionRename    Action = "rename"
	ActionConflict  Action = "conflict"
)

// Result describes a rename decision. Target is the normalized path even when
// the rename was skipped.
type Result struct {
	Source string
	Target string
	Action Action
	DryRun bool
}

// Normalize pads every floating-point token in the stem of name to at least two
// fractional digits. Tokens that already have two or more are left as they are,
// so Normalize(Normalize(x)) == Normalize(x).
func Normalize(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return floatToken.ReplaceAllStringFunc(stem, padToken) + ext
}

func padToken(token string) string {
	dot := strings.IndexByte(token, '.')
	if digits := len(token) - dot - 1; digits < 2 {
		return token + strings.Repeat("0", 2-digits)
	}
	return token
}

// Rename renames path to its normalized name. The file is never moved over an
// existing one; in that case the result action is ActionConflict and the error
// wraps ErrConflict. With dryRun set the decision is computed but nothing changes.
func Rename(path string, dryRun bool) (Result, error) {
	dir, base := filepath.Split(path)
	target := filepath.Join(dir, Normalize(base))
	result := Result{Source: path, Target: target, Action: ActionUnchanged, DryRun: dryRun}
	if target == filepath.Clean(path) {
		return result, nil
	}

	exists, err := fileutil.Exists(target)
	if err != nil {
		return result, fmt.Errorf("check rename target: %w", err)
	}
	if exists {
		result.Action = ActionConflict
		return result, fmt.Errorf("rename %s: %w: %s", filepath.Base(path), ErrConflict, filepath.Base(target))
	}

	result.Action = ActionRename
	if dryRun {
		return result, nil
	}
	if err := os.Rename(path, target); err != nil {
		return result, fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return result, nil
}
