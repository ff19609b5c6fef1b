package semantic

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/patchpilot/patchpilot/internal/sandbox"
)

func TestRankOrdersByOverlap(t *testing.T) {
	env := &fakeEnv{files: map[string]string{
		"auth.go":   "package auth login token session",
		"store.go":  "package store database rows",
		"README.md": "demo project",
	}}

	engine := NewEngine(10, 1024)
	res, err := engine.Rank(context.Background(), env, "fix the login token handling", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) == 0 {
		t.Fatal("expected at least one result")
	}
	if res[0].Path != "auth.go" {
		t.Fatalf("expected auth.go first, got %s", res[0].Path)
	}
}

func TestRankSkipsBinaryExtensions(t *testing.T) {
	env := &fakeEnv{files: map[string]string{
		"logo.png": "login token login token",
		"auth.go":  "login token",
	}}

	engine := NewEngine(10, 1024)
	res, err := engine.Rank(context.Background(), env, "login token", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range res {
		if r.Path == "logo.png" {
			t.Fatal("binary extension should be skipped")
		}
	}
}

func TestRankBoostsReadme(t *testing.T) {
	env := &fakeEnv{files: map[string]string{
		"README.md": "login",
		"other.go":  "login",
	}}

	engine := NewEngine(10, 1024)
	res, err := engine.Rank(context.Background(), env, "login", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 || res[0].Path != "README.md" {
		t.Fatalf("expected README.md ranked first, got %+v", res)
	}
}

func TestRankEmptyPrompt(t *testing.T) {
	engine := NewEngine(10, 1024)
	if _, err := engine.Rank(context.Background(), &fakeEnv{}, "  ", 3); err == nil {
		t.Fatal("expected error for blank prompt")
	}
}

// fakeEnv serves a fixed file set through the Environment contract.
type fakeEnv struct {
	files map[string]string
}

func (f *fakeEnv) ID() string            { return "fake" }
func (f *fakeEnv) Backing() sandbox.Kind { return sandbox.KindLocal }
func (f *fakeEnv) State() sandbox.State  { return sandbox.StateActive }

func (f *fakeEnv) Clone(context.Context, string, sandbox.EmitFunc) error { return nil }

func (f *fakeEnv) Execute(_ context.Context, command string, _ map[string]string) (sandbox.CommandResult, error) {
	if !strings.Contains(command, "ls-files") {
		return sandbox.CommandResult{ExitCode: 1}, nil
	}
	paths := make([]string, 0, len(f.files))
	for p := range f.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return sandbox.CommandResult{Stdout: strings.Join(paths, "\n")}, nil
}

func (f *fakeEnv) ReadFile(_ context.Context, path string) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", &sandbox.ReadError{Path: path, Err: errors.New("no such file")}
	}
	return content, nil
}

func (f *fakeEnv) WriteFile(_ context.Context, path, content string, _ sandbox.EmitFunc) error {
	f.files[path] = content
	return nil
}

func (f *fakeEnv) Terminate() error { return nil }
