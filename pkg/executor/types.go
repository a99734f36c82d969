package executor

import (
	"context"
	"time"
)

// Executor runs a coding assistant against a prepared workspace and captures
// what it printed.
type Executor interface {
	// Run blocks until the assistant exits, the request timeout elapses or
	// ctx is cancelled. Assistant failures are reported through the result,
	// not the error: a non-nil error means the run could not be attempted.
	Run(ctx context.Context, request RunRequest) (RunResult, error)

	// IsInstalled reports whether the backend this executor drives is
	// usable on this machine.
	IsInstalled(ctx context.Context) (bool, error)
}

type RunRequest struct {
	// InstanceID ties spawned containers and log lines back to the
	// marketplace instance being solved.
	InstanceID string
	// WorkspaceDir is the work-tree root the assistant edits in place.
	WorkspaceDir string
	// Prompt is the full instruction text handed to the assistant.
	Prompt string
	// Timeout bounds the run. Zero means wait forever.
	Timeout time.Duration
}

type RunResult struct {
	// Logs holds the combined stdout and stderr of the run.
	Logs     string
	ExitCode int
	Duration time.Duration
	// TimedOut marks a run that was killed at the request timeout.
	TimedOut bool
}

// Failed reports whether the workspace should be distrusted. Timed out runs
// count as failed even though the assistant never got to exit.
func (r RunResult) Failed() bool {
	return r.TimedOut || r.ExitCode != 0
}
