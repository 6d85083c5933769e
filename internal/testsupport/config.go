package testsupport

import (
	"path/filepath"
	"testing"

	"horizon/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StorePath = filepath.Join(base, "studio.db")
	cfg.Paths.SeriesDir = filepath.Join(base, "series")
	cfg.Paths.BackupDir = filepath.Join(base, "backups")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithRunLogLines bounds the in-memory run log tail on the test config.
func WithRunLogLines(lines int) ConfigOption {
	return func(c *config.Config) {
		c.Workflow.RunLogLines = lines
	}
}
