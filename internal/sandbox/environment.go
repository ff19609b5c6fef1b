package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/patchpilot/patchpilot/internal/stream"
)

// Kind is the backing kind of an environment.
type Kind string

const (
	KindCloud Kind = "cloud"
	KindLocal Kind = "local"
)

// State is the lifecycle state of an environment.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateCreated       State = "created"
	StateActive        State = "active"
	StateTerminated    State = "terminated"
)

// CommandResult is the outcome of one shell command. Exit code zero is the
// sole success signal; stderr text alone never indicates failure.
type CommandResult struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Success reports whether the command succeeded.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// EmitFunc receives progress events from long-running environment operations.
type EmitFunc func(ev stream.Event)

// Environment is one isolated, ephemeral workspace bound to a single request.
// All file and command operations are scoped to its working directory; once
// terminated every operation fails with ErrEnvironmentClosed.
type Environment interface {
	// ID is the unique workspace identifier.
	ID() string
	// Backing reports the backing kind.
	Backing() Kind
	// State reports the current lifecycle state.
	State() State
	// Clone runs a repository clone inside the workspace, emitting progress
	// events. A failed clone returns a *CloneError carrying captured stderr
	// and transitions the environment no further than created.
	Clone(ctx context.Context, repoURL string, emit EmitFunc) error
	// Execute runs a shell command inside the workspace with optional
	// injected environment variables, capturing stdout and stderr
	// independently. Execution is bounded by the environment lease.
	Execute(ctx context.Context, command string, envVars map[string]string) (CommandResult, error)
	// ReadFile returns file content; a missing file yields a *ReadError.
	ReadFile(ctx context.Context, path string) (string, error)
	// WriteFile creates parent directories as needed and overwrites existing
	// content, emitting a file_write / file_write_complete event pair.
	WriteFile(ctx context.Context, path string, content string, emit EmitFunc) error
	// Terminate releases backing resources. Idempotent and safe after
	// prior failures.
	Terminate() error
}

// Factory allocates environments for a fixed backing kind. Backend selection
// including fallback is a process-configuration decision made once, never
// per request.
type Factory interface {
	Backing() Kind
	Create(ctx context.Context, repoURL string) (Environment, error)
}

// repoName extracts the repository name from a clone URL for workspace ids.
func repoName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return "repo"
	}
	return trimmed
}
