package batch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// scanImages lists images under root in lexical order per directory. Directories
// that cannot be read are reported and skipped.
func (r *Runner) scanImages(root string, recursive bool) ([]string, []Outcome) {
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, []Outcome{{Path: root, Stage: StageScan, Action: ActionError, Err: err}}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		var images []string
		for _, entry := range entries {
			if entry.Type().IsRegular() && r.cfg.IsImageExtension(filepath.Ext(entry.Name())) {
				images = append(images, filepath.Join(root, entry.Name()))
			}
		}
		return images, nil
	}

	var (
		images   []string
		failures []Outcome
	)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			failures = append(failures, Outcome{Path: path, Stage: StageScan, Action: ActionError, Err: err})
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && r.cfg.IsImageExtension(filepath.Ext(d.Name())) {
			images = append(images, path)
		}
		return nil
	})
	return images, failures
}
