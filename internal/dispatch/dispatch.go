// Package dispatch pulls pending projects off the queue and pushes them
// through the run registry, recording outcomes in the store.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"horizon/internal/logging"
	"horizon/internal/runreg"
	"horizon/internal/store"
)

// Dispatcher is the single writer that moves projects from pending to a
// terminal state. One dispatcher per process; the registry enforces one
// worker at a time.
type Dispatcher struct {
	store    *store.Store
	registry runreg.Registry
	command  []string
	logger   *slog.Logger
}

// New wires a dispatcher to its store and registry. command is the worker
// invocation; the project's id and active step are appended as arguments
// and exported in the environment.
func New(st *store.Store, registry runreg.Registry, command []string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		store:    st,
		registry: registry,
		command:  append([]string(nil), command...),
		logger:   logger,
	}
}

// DispatchNext runs the project that has waited longest in the pending
// queue to completion. It returns the finished run, or nil when the queue
// is empty.
func (d *Dispatcher) DispatchNext(ctx context.Context) (*store.Run, error) {
	if len(d.command) == 0 {
		return nil, fmt.Errorf("dispatcher has no worker command")
	}

	project, err := d.store.GetNextPendingProject(ctx)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}

	command := append(append([]string(nil), d.command...),
		"--project", strconv.FormatInt(project.ID, 10),
		"--step", project.ActiveStep,
	)
	run, err := d.store.StartRun(ctx, project.ID, project.ActiveStep, strings.Join(command, " "))
	if err != nil {
		return nil, err
	}
	if err := d.store.SetProjectStatus(ctx, project.ID, store.ProjectRunning); err != nil {
		return nil, err
	}

	d.logger.Info("dispatching project",
		"project", project.Name,
		"step", project.ActiveStep,
		"run", run.ID,
	)

	token, err := d.registry.Start(ctx, runreg.Spec{
		RunID:     run.ID,
		ProjectID: project.ID,
		Step:      project.ActiveStep,
		Command:   command,
	})
	if err != nil {
		return nil, d.failRun(ctx, run.ID, project.ID, fmt.Sprintf("launch failed: %v", err), err)
	}

	result, err := d.registry.Wait(ctx)
	if err != nil {
		return nil, d.failRun(ctx, run.ID, project.ID, fmt.Sprintf("run %s did not finish: %v", token, err), err)
	}

	if result.ExitCode != 0 {
		message := fmt.Sprintf("worker exited %d", result.ExitCode)
		if tail := lastLine(result.LogTail); tail != "" {
			message += ": " + tail
		}
		if err := d.finish(ctx, run.ID, project.ID, store.RunError, store.ProjectError, message); err != nil {
			return nil, err
		}
	} else {
		if err := d.finish(ctx, run.ID, project.ID, store.RunDone, store.ProjectDone, ""); err != nil {
			return nil, err
		}
	}

	return d.store.GetRun(ctx, run.ID)
}

func (d *Dispatcher) finish(ctx context.Context, runID, projectID int64, runStatus store.RunStatus, projectStatus store.ProjectStatus, message string) error {
	if err := d.store.FinishRun(ctx, runID, runStatus, message); err != nil {
		return err
	}
	return d.store.SetProjectStatus(ctx, projectID, projectStatus)
}

// failRun closes the run as an error before surfacing the launch or wait
// failure, so a half-started run never lingers as running.
func (d *Dispatcher) failRun(ctx context.Context, runID, projectID int64, message string, cause error) error {
	if err := d.finish(ctx, runID, projectID, store.RunError, store.ProjectError, message); err != nil {
		d.logger.Error("close failed run", "run", runID, "error", err)
	}
	return cause
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
