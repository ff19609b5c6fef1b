package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchpilot/patchpilot/internal/stream"
)

// LocalFactory allocates workspaces under a root directory on the local
// filesystem. Zero external dependencies, no multi-tenant isolation.
type LocalFactory struct {
	Root           string
	Lease          time.Duration
	CommandTimeout time.Duration
}

// Backing reports the local backing kind.
func (f *LocalFactory) Backing() Kind { return KindLocal }

// Create allocates a fresh workspace directory. A preexisting directory for
// the same id is wiped before use.
func (f *LocalFactory) Create(ctx context.Context, repoURL string) (Environment, error) {
	root := f.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "patchpilot")
	}

	id := fmt.Sprintf("local_%s_%s", repoName(repoURL), uuid.NewString()[:8])
	workspace := filepath.Join(root, id)

	if err := os.RemoveAll(workspace); err != nil {
		return nil, &ProvisioningError{Backend: string(KindLocal), Err: err}
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, &ProvisioningError{Backend: string(KindLocal), Err: err}
	}

	return &localEnvironment{
		id:             id,
		workspace:      workspace,
		leaseExpiry:    time.Now().Add(f.Lease),
		lease:          f.Lease,
		commandTimeout: f.CommandTimeout,
		state:          StateCreated,
	}, nil
}

type localEnvironment struct {
	id             string
	workspace      string
	lease          time.Duration
	leaseExpiry    time.Time
	commandTimeout time.Duration

	mu    sync.Mutex
	state State
}

func (e *localEnvironment) ID() string    { return e.id }
func (e *localEnvironment) Backing() Kind { return KindLocal }

func (e *localEnvironment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *localEnvironment) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// checkOpen guards every operation against use after termination and lease
// expiry.
func (e *localEnvironment) checkOpen(op string) error {
	if e.State() == StateTerminated {
		return ErrEnvironmentClosed
	}
	if time.Now().After(e.leaseExpiry) {
		return &TimeoutError{Op: op, Lease: e.lease}
	}
	return nil
}

func (e *localEnvironment) Clone(ctx context.Context, repoURL string, emit EmitFunc) error {
	if err := e.checkOpen("clone"); err != nil {
		return err
	}

	emit(stream.Sandbox(fmt.Sprintf("Preparing local workspace: %s", e.workspace)))
	emit(stream.Sandbox(fmt.Sprintf("Cloning %s...", repoURL)))

	res, err := e.run(ctx, fmt.Sprintf("git clone %s .", shellQuote(repoURL)), nil)
	if err != nil {
		return err
	}
	if !res.Success() {
		return &CloneError{RepoURL: repoURL, Stderr: strings.TrimSpace(res.Stderr), ExitCode: res.ExitCode}
	}

	e.setState(StateActive)
	emit(stream.Sandbox("Repository cloned successfully"))
	return nil
}

func (e *localEnvironment) Execute(ctx context.Context, command string, envVars map[string]string) (CommandResult, error) {
	if err := e.checkOpen("execute"); err != nil {
		return CommandResult{}, err
	}
	return e.run(ctx, command, envVars)
}

func (e *localEnvironment) run(ctx context.Context, command string, envVars map[string]string) (CommandResult, error) {
	timeout := e.commandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if remaining := time.Until(e.leaseExpiry); remaining < timeout {
		timeout = remaining
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = e.workspace
	cmd.Env = os.Environ()
	for k, v := range envVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return CommandResult{}, &TimeoutError{Op: "execute", Lease: e.lease}
	}

	res := CommandResult{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
		ExitCode: func() int {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitCode()
			}
			if err != nil {
				return -1
			}
			return 0
		}(),
	}
	return res, nil
}

func (e *localEnvironment) ReadFile(ctx context.Context, path string) (string, error) {
	if err := e.checkOpen("read_file"); err != nil {
		return "", err
	}
	resolved, err := e.resolve(path)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	return string(data), nil
}

func (e *localEnvironment) WriteFile(ctx context.Context, path string, content string, emit EmitFunc) error {
	if err := e.checkOpen("write_file"); err != nil {
		return err
	}
	resolved, err := e.resolve(path)
	if err != nil {
		return err
	}

	emit(stream.Event{Type: stream.KindFileWrite, File: path, Workspace: e.id})

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return err
	}

	emit(stream.Event{Type: stream.KindFileWriteComplete, File: path})
	return nil
}

// resolve validates that path stays inside the workspace.
func (e *localEnvironment) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	abs := filepath.Clean(filepath.Join(e.workspace, clean))
	if !strings.HasPrefix(abs, e.workspace+string(os.PathSeparator)) && abs != e.workspace {
		return "", fmt.Errorf("path escapes workspace")
	}
	return abs, nil
}

func (e *localEnvironment) Terminate() error {
	e.mu.Lock()
	if e.state == StateTerminated {
		e.mu.Unlock()
		return nil
	}
	e.state = StateTerminated
	e.mu.Unlock()

	return os.RemoveAll(e.workspace)
}

// shellQuote wraps a value in single quotes for safe interpolation into a
// bash -c command line.
func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
