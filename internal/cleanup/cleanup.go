// Package cleanup removes sidecar files whose image no longer exists.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"sidecar/internal/fileutil"
	"sidecar/internal/logging"
)

// Options controls an orphan cleanup pass.
type Options struct {
	Recursive bool
	DryRun    bool
	// ImageExtensions lists the extensions (with dot) that count as images.
	ImageExtensions []string
}

// Result contains the outcome of a cleanup pass. In dry-run mode Removed and
// RemovedDirs list what a real run would have removed.
type Result struct {
	Removed     []string
	RemovedDirs []string
	Errors      []CleanupError
	DryRun      bool
}

// CleanupError pairs a path with the error that stopped its removal.
type CleanupError struct {
	Path  string
	Error error
}

// Clean deletes orphaned .json and .txt sidecars under root, then removes
// directories that the pass left empty. The root itself is never removed.
func Clean(ctx context.Context, root string, opts Options, logger *slog.Logger) Result {
	c := &cleaner{
		opts:   opts,
		exts:   make(map[string]struct{}, len(opts.ImageExtensions)),
		logger: logging.NewComponentLogger(logger, "cleanup"),
		result: Result{DryRun: opts.DryRun},
	}
	for _, ext := range opts.ImageExtensions {
		c.exts[strings.ToLower(ext)] = struct{}{}
	}
	root = filepath.Clean(strings.TrimSpace(root))
	c.cleanDir(ctx, root)
	return c.result
}

type cleaner struct {
	opts   Options
	exts   map[string]struct{}
	logger *slog.Logger
	result Result
}

// cleanDir processes dir depth-first. It reports whether the directory ended
// the pass empty and whether anything inside it was removed.
func (c *cleaner) cleanDir(ctx context.Context, dir string) (empty, changed bool) {
	if err := ctx.Err(); err != nil {
		c.fail(dir, err, "cleanup_cancelled")
		return false, false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.fail(dir, err, "cleanup_read_failed")
		return false, false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	images := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := c.exts[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			images[stemKey(entry.Name())] = struct{}{}
		}
	}

	remaining := len(entries)
	if c.opts.Recursive {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			sub := filepath.Join(dir, entry.Name())
			subEmpty, subChanged := c.cleanDir(ctx, sub)
			if subChanged {
				changed = true
			}
			if subEmpty && subChanged && c.removeDir(sub) {
				remaining--
			}
		}
	}

	for _, entry := range entries {
		if entry.IsDir() || !isSidecar(entry.Name()) {
			continue
		}
		if _, ok := images[stemKey(entry.Name())]; ok {
			continue
		}
		if c.removeFile(filepath.Join(dir, entry.Name())) {
			remaining--
			changed = true
		}
	}

	return remaining == 0, changed
}

func (c *cleaner) removeFile(path string) bool {
	if !c.opts.DryRun {
		if err := os.Remove(path); err != nil {
			c.fail(path, err, "orphan_remove_failed")
			return false
		}
	}
	c.result.Removed = append(c.result.Removed, path)
	attrs := logging.DecisionAttrs("cleanup", "delete", "no_matching_image")
	attrs = append(attrs,
		logging.String(logging.FieldPath, path),
		logging.Bool(logging.FieldDryRun, c.opts.DryRun),
	)
	c.logger.Info("orphaned sidecar removed", logging.Args(attrs...)...)
	return true
}

func (c *cleaner) removeDir(path string) bool {
	if !c.opts.DryRun {
		if err := os.Remove(path); err != nil {
			c.fail(path, err, "empty_dir_remove_failed")
			return false
		}
	}
	c.result.RemovedDirs = append(c.result.RemovedDirs, path)
	attrs := logging.DecisionAttrs("cleanup", "remove_dir", "emptied_by_cleanup")
	attrs = append(attrs,
		logging.String(logging.FieldPath, path),
		logging.Bool(logging.FieldDryRun, c.opts.DryRun),
	)
	c.logger.Info("empty directory removed", logging.Args(attrs...)...)
	return true
}

func (c *cleaner) fail(path string, err error, eventType string) {
	c.result.Errors = append(c.result.Errors, CleanupError{Path: path, Error: err})
	logging.WarnWithContext(c.logger, "cleanup step failed", eventType,
		logging.String(logging.FieldPath, path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check directory permissions"),
		logging.String(logging.FieldImpact, "orphan left in place"),
	)
}

func isSidecar(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".txt":
		return true
	}
	return false
}

// stemKey compares stems independent of Unicode composition, so an image saved
// with decomposed characters still matches a sidecar written with composed ones.
func stemKey(name string) string {
	return norm.NFC.String(fileutil.Stem(name))
}
