// Package runreg tracks the single external worker process a dispatcher may
// have in flight, together with a bounded tail of its output.
package runreg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunInFlight indicates Start was called while a process is still
// running.
var ErrRunInFlight = errors.New("a run is already in flight")

// ErrNoRun indicates Wait or Snapshot was called with nothing started.
var ErrNoRun = errors.New("no run in flight")

// Spec describes the worker process to launch for a run.
type Spec struct {
	RunID     int64
	ProjectID int64
	Step      string
	Command   []string
	Dir       string
	Env       []string
}

// Status describes the run currently tracked by a registry.
type Status struct {
	Token     string
	RunID     int64
	ProjectID int64
	Step      string
	StartedAt time.Time
}

// Result is the outcome of a finished run.
type Result struct {
	Token    string
	ExitCode int
	LogTail  []string
}

// Registry launches worker processes and reports on the one in flight.
type Registry interface {
	// Start launches the process described by spec and returns an opaque
	// run token. Only one run may be in flight at a time.
	Start(ctx context.Context, spec Spec) (string, error)
	// Running reports whether a run is still in flight.
	Running() bool
	// Snapshot returns the in-flight run's status and current log tail.
	Snapshot() (*Status, []string, error)
	// Wait blocks until the in-flight run finishes and returns its result.
	Wait(ctx context.Context) (*Result, error)
}

// ProcessRegistry runs workers as child processes. A reader goroutine
// drains the combined output into a bounded ring so a long run cannot grow
// memory without bound.
type ProcessRegistry struct {
	mu       sync.Mutex
	logLimit int

	status *Status
	cmd    *exec.Cmd
	ring   *logRing
	done   chan struct{}
	result *Result
	runErr error
}

// NewProcessRegistry returns a registry keeping at most logLimit output
// lines per run.
func NewProcessRegistry(logLimit int) *ProcessRegistry {
	if logLimit <= 0 {
		logLimit = 1000
	}
	return &ProcessRegistry{logLimit: logLimit}
}

func (r *ProcessRegistry) Start(ctx context.Context, spec Spec) (string, error) {
	if len(spec.Command) == 0 {
		return "", errors.New("run command must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != nil && r.result == nil && r.runErr == nil {
		return "", ErrRunInFlight
	}

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return "", fmt.Errorf("start run command: %w", err)
	}

	token := uuid.NewString()
	ring := newLogRing(r.logLimit)
	done := make(chan struct{})

	r.status = &Status{
		Token:     token,
		RunID:     spec.RunID,
		ProjectID: spec.ProjectID,
		Step:      spec.Step,
		StartedAt: time.Now().UTC(),
	}
	r.cmd = cmd
	r.ring = ring
	r.done = done
	r.result = nil
	r.runErr = nil

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			ring.append(scanner.Text())
		}
	}()

	go func() {
		waitErr := cmd.Wait()
		_ = pw.Close()
		<-readerDone

		exitCode := 0
		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
		case errors.As(waitErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			exitCode = -1
		}

		r.mu.Lock()
		r.result = &Result{
			Token:    token,
			ExitCode: exitCode,
			LogTail:  ring.lines(),
		}
		if waitErr != nil && exitErr == nil {
			r.runErr = waitErr
		}
		r.mu.Unlock()
		close(done)
	}()

	return token, nil
}

func (r *ProcessRegistry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status != nil && r.result == nil && r.runErr == nil
}

func (r *ProcessRegistry) Snapshot() (*Status, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == nil {
		return nil, nil, ErrNoRun
	}
	statusCopy := *r.status
	return &statusCopy, r.ring.lines(), nil
}

func (r *ProcessRegistry) Wait(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil, ErrNoRun
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runErr != nil {
		return nil, fmt.Errorf("run failed: %w", r.runErr)
	}
	return r.result, nil
}

// logRing keeps the newest lines up to a fixed capacity.
type logRing struct {
	mu    sync.Mutex
	limit int
	buf   []string
	start int
	count int
}

func newLogRing(limit int) *logRing {
	return &logRing{limit: limit, buf: make([]string, limit)}
}

func (l *logRing) append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count < l.limit {
		l.buf[(l.start+l.count)%l.limit] = line
		l.count++
		return
	}
	l.buf[l.start] = line
	l.start = (l.start + 1) % l.limit
}

func (l *logRing) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.buf[(l.start+i)%l.limit])
	}
	return out
}
