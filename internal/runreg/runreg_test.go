package runreg_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"horizon/internal/runreg"
)

func TestProcessRegistryRunsCommand(t *testing.T) {
	registry := runreg.NewProcessRegistry(100)

	ctx := context.Background()
	token, err := registry.Start(ctx, runreg.Spec{
		RunID:     1,
		ProjectID: 1,
		Step:      "translate",
		Command:   []string{"sh", "-c", "echo line-one; echo line-two"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a run token")
	}

	result, err := registry.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.Token != token {
		t.Fatalf("result token %q does not match %q", result.Token, token)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
	if len(result.LogTail) != 2 || result.LogTail[0] != "line-one" || result.LogTail[1] != "line-two" {
		t.Fatalf("unexpected log tail %v", result.LogTail)
	}
	if registry.Running() {
		t.Fatal("expected registry to be idle after Wait")
	}
}

func TestProcessRegistryReportsExitCode(t *testing.T) {
	registry := runreg.NewProcessRegistry(100)

	ctx := context.Background()
	if _, err := registry.Start(ctx, runreg.Spec{Command: []string{"sh", "-c", "exit 3"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	result, err := registry.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", result.ExitCode)
	}
}

func TestProcessRegistrySingleFlight(t *testing.T) {
	registry := runreg.NewProcessRegistry(100)

	ctx := context.Background()
	if _, err := registry.Start(ctx, runreg.Spec{Command: []string{"sleep", "5"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := registry.Start(ctx, runreg.Spec{Command: []string{"true"}}); !errors.Is(err, runreg.ErrRunInFlight) {
		t.Fatalf("expected ErrRunInFlight, got %v", err)
	}

	status, _, err := registry.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if status.Token == "" || status.StartedAt.IsZero() {
		t.Fatalf("incomplete status %+v", status)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := registry.Wait(cancelCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error while run sleeps, got %v", err)
	}
}

func TestProcessRegistryBoundsLogTail(t *testing.T) {
	registry := runreg.NewProcessRegistry(3)

	ctx := context.Background()
	if _, err := registry.Start(ctx, runreg.Spec{
		Command: []string{"sh", "-c", "for i in 1 2 3 4 5; do echo line-$i; done"},
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	result, err := registry.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	want := []string{"line-3", "line-4", "line-5"}
	if len(result.LogTail) != len(want) {
		t.Fatalf("expected %d lines, got %v", len(want), result.LogTail)
	}
	for i, line := range want {
		if result.LogTail[i] != line {
			t.Fatalf("line %d: expected %q, got %q", i, line, result.LogTail[i])
		}
	}
}

func TestWaitWithoutRun(t *testing.T) {
	registry := runreg.NewProcessRegistry(10)
	if _, err := registry.Wait(context.Background()); !errors.Is(err, runreg.ErrNoRun) {
		t.Fatalf("expected ErrNoRun, got %v", err)
	}
	if _, _, err := registry.Snapshot(); !errors.Is(err, runreg.ErrNoRun) {
		t.Fatalf("expected ErrNoRun, got %v", err)
	}
}
