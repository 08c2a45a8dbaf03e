package testsupport

import (
	"path/filepath"
	"testing"

	"sidecar/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Journal.Path = filepath.Join(base, "state", "journal.db")

	for _, opt := range opts {
		opt(&cfgVal)
	}
	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfgVal
}

// WithJournal enables the run journal on the test config.
func WithJournal() ConfigOption {
	return func(c *config.Config) {
		c.Journal.Enabled = true
	}
}

// WithImageExtensions overrides the scanned image extensions.
func WithImageExtensions(exts ...string) ConfigOption {
	return func(c *config.Config) {
		c.Scan.ImageExtensions = exts
	}
}
