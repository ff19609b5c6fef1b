package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patchpilot/patchpilot/internal/stream"
)

// CloudFactory allocates environments on a remote sandbox-runner service.
// The runner provides true multi-tenant isolation at the cost of startup
// latency and an external dependency.
type CloudFactory struct {
	BaseURL        string
	Token          string
	Lease          time.Duration
	CommandTimeout time.Duration
	Client         *http.Client
}

// Backing reports the cloud backing kind.
func (f *CloudFactory) Backing() Kind { return KindCloud }

// Create allocates a sandbox on the runner service.
func (f *CloudFactory) Create(ctx context.Context, repoURL string) (Environment, error) {
	if strings.TrimSpace(f.BaseURL) == "" {
		return nil, &ProvisioningError{Backend: string(KindCloud), Err: fmt.Errorf("runner_url is not configured")}
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var created struct {
		ID      string `json:"id"`
		WorkDir string `json:"workdir"`
	}
	body := map[string]any{"lease_seconds": int(f.Lease.Seconds())}
	if err := f.post(ctx, client, "/v1/sandboxes", body, &created); err != nil {
		return nil, &ProvisioningError{Backend: string(KindCloud), Err: err}
	}
	if created.ID == "" {
		return nil, &ProvisioningError{Backend: string(KindCloud), Err: fmt.Errorf("runner returned empty sandbox id")}
	}

	short := created.ID
	if len(short) > 8 {
		short = short[:8]
	}

	return &cloudEnvironment{
		id:             fmt.Sprintf("cloud_%s_%s", repoName(repoURL), short),
		remoteID:       created.ID,
		baseURL:        strings.TrimRight(f.BaseURL, "/"),
		token:          f.Token,
		client:         client,
		lease:          f.Lease,
		leaseExpiry:    time.Now().Add(f.Lease),
		commandTimeout: f.CommandTimeout,
		state:          StateCreated,
	}, nil
}

func (f *CloudFactory) post(ctx context.Context, client *http.Client, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(f.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("runner: status %d: %s", res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

type cloudEnvironment struct {
	id             string
	remoteID       string
	baseURL        string
	token          string
	client         *http.Client
	lease          time.Duration
	leaseExpiry    time.Time
	commandTimeout time.Duration

	mu    sync.Mutex
	state State
}

func (e *cloudEnvironment) ID() string    { return e.id }
func (e *cloudEnvironment) Backing() Kind { return KindCloud }

func (e *cloudEnvironment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *cloudEnvironment) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *cloudEnvironment) checkOpen(op string) error {
	if e.State() == StateTerminated {
		return ErrEnvironmentClosed
	}
	if time.Now().After(e.leaseExpiry) {
		return &TimeoutError{Op: op, Lease: e.lease}
	}
	return nil
}

func (e *cloudEnvironment) Clone(ctx context.Context, repoURL string, emit EmitFunc) error {
	if err := e.checkOpen("clone"); err != nil {
		return err
	}

	emit(stream.Sandbox(fmt.Sprintf("Creating cloud sandbox: %s", e.id)))
	emit(stream.Sandbox(fmt.Sprintf("Cloning %s in cloud sandbox...", repoURL)))

	res, err := e.exec(ctx, fmt.Sprintf("git clone %s .", shellQuote(repoURL)), nil)
	if err != nil {
		return err
	}
	if !res.Success() {
		return &CloneError{RepoURL: repoURL, Stderr: strings.TrimSpace(res.Stderr), ExitCode: res.ExitCode}
	}

	e.setState(StateActive)
	emit(stream.Sandbox("Repository cloned successfully in cloud sandbox"))
	return nil
}

func (e *cloudEnvironment) Execute(ctx context.Context, command string, envVars map[string]string) (CommandResult, error) {
	if err := e.checkOpen("execute"); err != nil {
		return CommandResult{}, err
	}
	return e.exec(ctx, command, envVars)
}

func (e *cloudEnvironment) exec(ctx context.Context, command string, envVars map[string]string) (CommandResult, error) {
	timeout := e.commandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if remaining := time.Until(e.leaseExpiry); remaining < timeout {
		timeout = remaining
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out struct {
		Stdout     string `json:"stdout"`
		Stderr     string `json:"stderr"`
		ExitCode   int    `json:"exit_code"`
		DurationMs int64  `json:"duration_ms"`
	}
	in := map[string]any{
		"command":         command,
		"env":             envVars,
		"timeout_seconds": int(timeout.Seconds()),
	}
	if err := e.post(ctx, "/exec", in, &out); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return CommandResult{}, &TimeoutError{Op: "execute", Lease: e.lease}
		}
		return CommandResult{}, err
	}

	return CommandResult{
		Command:  command,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		Duration: time.Duration(out.DurationMs) * time.Millisecond,
	}, nil
}

func (e *cloudEnvironment) ReadFile(ctx context.Context, path string) (string, error) {
	if err := e.checkOpen("read_file"); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/sandboxes/%s/files?path=%s", e.baseURL, e.remoteID, url.QueryEscape(path)), nil)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	e.authorize(req)

	res, err := e.client.Do(req)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", &ReadError{Path: path, Err: fmt.Errorf("file not found")}
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return "", &ReadError{Path: path, Err: fmt.Errorf("runner: status %d: %s", res.StatusCode, string(b))}
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	return out.Content, nil
}

func (e *cloudEnvironment) WriteFile(ctx context.Context, path string, content string, emit EmitFunc) error {
	if err := e.checkOpen("write_file"); err != nil {
		return err
	}

	emit(stream.Event{Type: stream.KindFileWrite, File: path, Workspace: e.id})

	in := map[string]any{"path": path, "content": content}
	var out struct{}
	if err := e.post(ctx, "/files", in, &out); err != nil {
		return err
	}

	emit(stream.Event{Type: stream.KindFileWriteComplete, File: path})
	return nil
}

func (e *cloudEnvironment) Terminate() error {
	e.mu.Lock()
	if e.state == StateTerminated {
		e.mu.Unlock()
		return nil
	}
	e.state = StateTerminated
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/v1/sandboxes/%s", e.baseURL, e.remoteID), nil)
	if err != nil {
		return err
	}
	e.authorize(req)

	res, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 && res.StatusCode != http.StatusNotFound {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("runner: terminate status %d: %s", res.StatusCode, string(b))
	}
	return nil
}

func (e *cloudEnvironment) post(ctx context.Context, suffix string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/sandboxes/%s%s", e.baseURL, e.remoteID, suffix), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req)

	res, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("runner: status %d: %s", res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (e *cloudEnvironment) authorize(req *http.Request) {
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
}
