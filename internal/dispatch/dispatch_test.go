package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"horizon/internal/dispatch"
	"horizon/internal/runreg"
	"horizon/internal/store"
	"horizon/internal/testsupport"
)

// fakeRegistry completes immediately with a canned result.
type fakeRegistry struct {
	spec     runreg.Spec
	exitCode int
	logTail  []string
	startErr error
}

func (f *fakeRegistry) Start(ctx context.Context, spec runreg.Spec) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.spec = spec
	return "fake-token", nil
}

func (f *fakeRegistry) Running() bool { return false }

func (f *fakeRegistry) Snapshot() (*runreg.Status, []string, error) {
	return nil, nil, runreg.ErrNoRun
}

func (f *fakeRegistry) Wait(ctx context.Context) (*runreg.Result, error) {
	return &runreg.Result{Token: "fake-token", ExitCode: f.exitCode, LogTail: f.logTail}, nil
}

func pendingProject(t *testing.T, st *store.Store, name string) *store.Project {
	t.Helper()
	project, err := st.CreateProject(context.Background(), name, store.ProjectFields{})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := st.MarkProjectPending(context.Background(), project.ID, "translate"); err != nil {
		t.Fatalf("MarkProjectPending failed: %v", err)
	}
	return project
}

func TestDispatchNextCompletesProject(t *testing.T) {
	st := testsupport.MustOpenStore(t)
	registry := &fakeRegistry{}
	dispatcher := dispatch.New(st, registry, []string{"horizon-worker"}, nil)

	ctx := context.Background()
	project := pendingProject(t, st, "Dispatched Project")

	run, err := dispatcher.DispatchNext(ctx)
	if err != nil {
		t.Fatalf("DispatchNext failed: %v", err)
	}
	if run == nil {
		t.Fatal("expected a run for the pending project")
	}
	if run.Status != store.RunDone {
		t.Fatalf("expected done run, got %q", run.Status)
	}
	if registry.spec.ProjectID != project.ID || registry.spec.Step != "translate" {
		t.Fatalf("unexpected launch spec %+v", registry.spec)
	}

	settled, err := st.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if settled.Status != store.ProjectDone {
		t.Fatalf("expected done project, got %q", settled.Status)
	}
}

func TestDispatchNextRecordsWorkerFailure(t *testing.T) {
	st := testsupport.MustOpenStore(t)
	registry := &fakeRegistry{exitCode: 2, logTail: []string{"translating ch01", "fatal: glossary missing"}}
	dispatcher := dispatch.New(st, registry, []string{"horizon-worker"}, nil)

	ctx := context.Background()
	project := pendingProject(t, st, "Failing Project")

	run, err := dispatcher.DispatchNext(ctx)
	if err != nil {
		t.Fatalf("DispatchNext failed: %v", err)
	}
	if run.Status != store.RunError {
		t.Fatalf("expected error run, got %q", run.Status)
	}
	if run.Message == "" {
		t.Fatal("expected failure message on run")
	}

	failed, err := st.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if failed.Status != store.ProjectError {
		t.Fatalf("expected error project, got %q", failed.Status)
	}
}

func TestDispatchNextClosesRunWhenLaunchFails(t *testing.T) {
	st := testsupport.MustOpenStore(t)
	launchErr := errors.New("binary not found")
	registry := &fakeRegistry{startErr: launchErr}
	dispatcher := dispatch.New(st, registry, []string{"horizon-worker"}, nil)

	ctx := context.Background()
	project := pendingProject(t, st, "Unlaunchable Project")

	if _, err := dispatcher.DispatchNext(ctx); !errors.Is(err, launchErr) {
		t.Fatalf("expected launch error, got %v", err)
	}

	runs, err := st.RecentRuns(ctx, project.ID, 1)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != store.RunError {
		t.Fatalf("expected failed run recorded, got %+v", runs)
	}
}

func TestDispatchNextEmptyQueue(t *testing.T) {
	st := testsupport.MustOpenStore(t)
	dispatcher := dispatch.New(st, &fakeRegistry{}, []string{"horizon-worker"}, nil)

	run, err := dispatcher.DispatchNext(context.Background())
	if err != nil {
		t.Fatalf("DispatchNext failed: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run on empty queue, got %+v", run)
	}
}
