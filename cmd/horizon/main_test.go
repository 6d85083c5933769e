package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()

	base := t.TempDir()
	dbPath = filepath.Join(base, "studio.db")
	configPath = filepath.Join(base, "horizon.toml")
	content := fmt.Sprintf(`[paths]
store_path = %q
series_dir = %q
log_dir = %q

[logging]
format = "console"
level = "error"
`, dbPath, filepath.Join(base, "series"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, dbPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := runCommand(t, "migrate", "--config", configPath)
	if err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "MIGRATION_OK from=0 to=") {
		t.Fatalf("expected MIGRATION_OK line, got %q", out)
	}

	out, err = runCommand(t, "migrate", "--config", configPath)
	if err != nil {
		t.Fatalf("second migrate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "MIGRATION_SKIPPED schema already current") {
		t.Fatalf("expected MIGRATION_SKIPPED line, got %q", out)
	}
}

func TestMigrateWritesReportFile(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	out, err := runCommand(t, "migrate", "--config", configPath, "--report-file", reportPath)
	if err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "REPORT_WRITTEN "+reportPath) {
		t.Fatalf("expected REPORT_WRITTEN line, got %q", out)
	}
	payload, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(payload), "\"schema_version\"") {
		t.Fatalf("report missing schema version: %s", payload)
	}
}

func TestRollbackCommand(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	if out, err := runCommand(t, "migrate", "--config", configPath); err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, out)
	}

	out, err := runCommand(t, "rollback", "--config", configPath)
	if err != nil {
		t.Fatalf("rollback failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ROLLBACK_OK to=") {
		t.Fatalf("expected ROLLBACK_OK line, got %q", out)
	}
}

func TestRollbackExitCodeWhenUnavailable(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	if out, err := runCommand(t, "migrate", "--config", configPath); err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, out)
	}
	// Each rollback walks back one migration; once the forward history is
	// spent the next attempt reports unavailable with exit code 2.
	var (
		out string
		err error
	)
	for attempt := 0; attempt < 20; attempt++ {
		out, err = runCommand(t, "rollback", "--config", configPath)
		if err != nil {
			break
		}
	}
	if err == nil {
		t.Fatalf("rollback never ran out of history, last output %q", out)
	}
	var coded *exitCodeError
	if !errors.As(err, &coded) || coded.code != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
	if !strings.Contains(out, "ROLLBACK_UNAVAILABLE") {
		t.Fatalf("expected ROLLBACK_UNAVAILABLE line, got %q", out)
	}
}

func TestReportCommandJSON(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	if out, err := runCommand(t, "migrate", "--config", configPath); err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, out)
	}

	out, err := runCommand(t, "report", "--config", configPath)
	if err != nil {
		t.Fatalf("report failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "\"schema_version\"") || !strings.Contains(out, "\"history\"") {
		t.Fatalf("expected JSON report, got %q", out)
	}
}

func TestStatusCommandEmptyStore(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := runCommand(t, "status", "--config", configPath)
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No projects.") {
		t.Fatalf("expected empty-store message, got %q", out)
	}
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init failed: %v\n%s", err, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
