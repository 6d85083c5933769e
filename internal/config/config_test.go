package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"horizon/internal/config"
)

func TestLoadCustomPath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "horizon.toml")
	content := `
[paths]
store_path = "` + filepath.Join(dir, "studio.db") + `"
series_dir = "` + filepath.Join(dir, "series") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if resolved != cfgPath {
		t.Fatalf("resolved path mismatch: %q", resolved)
	}
	if cfg.Paths.StorePath != filepath.Join(dir, "studio.db") {
		t.Fatalf("unexpected store path: %q", cfg.Paths.StorePath)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging section not applied: %+v", cfg.Logging)
	}
}

func TestLoadRejectsBadFormat(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "horizon.toml")
	content := `
[paths]
store_path = "` + filepath.Join(dir, "studio.db") + `"

[logging]
format = "xml"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(cfgPath); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestBackupRootDefaultsToSibling(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StorePath = "/data/horizon/studio.db"
	cfg.Paths.BackupDir = ""
	if got := cfg.BackupRoot(); got != "/data/horizon/backups" {
		t.Fatalf("unexpected backup root: %q", got)
	}

	cfg.Paths.BackupDir = "/mnt/backups"
	if got := cfg.BackupRoot(); got != "/mnt/backups" {
		t.Fatalf("expected override to win, got %q", got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StorePath = filepath.Join(dir, "data", "studio.db")
	cfg.Paths.SeriesDir = filepath.Join(dir, "series")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, p := range []string{filepath.Join(dir, "data"), cfg.Paths.SeriesDir, cfg.Paths.LogDir} {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", p, err)
		}
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.toml")

	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "store_path") {
		t.Fatal("sample config missing store_path")
	}

	if err := config.CreateSample(target); err == nil {
		t.Fatal("expected error when sample already exists")
	}
}
