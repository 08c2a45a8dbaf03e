package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"sidecar/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks needed before processing root. The root only has
// to be readable: a directory that refuses sidecar writes fails per file.
func RunAll(cfg *config.Config, root string, dryRun bool) []Result {
	results := []Result{CheckDirectoryAccess("Image directory", root, false)}
	if cfg == nil {
		return results
	}
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir, true))
	if cfg.Journal.Enabled && !dryRun {
		results = append(results, CheckDirectoryAccess("Journal directory", filepath.Dir(cfg.Journal.Path), true))
	}
	return results
}

// Err joins the details of every failed result, or returns nil when all passed.
func Err(results []Result) error {
	var errs []error
	for _, r := range results {
		if !r.Passed {
			errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Detail))
		}
	}
	return errors.Join(errs...)
}

// CheckDirectoryAccess verifies that the directory exists and is readable, and
// writable when needWrite is set.
func CheckDirectoryAccess(name, path string, needWrite bool) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path is empty"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	mode, label := uint32(unix.R_OK|unix.X_OK), "read ok"
	if needWrite {
		mode, label = unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok"
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, label)}
}
