package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/stream"
)

func newLocalEnv(t *testing.T) Environment {
	t.Helper()
	f := &LocalFactory{
		Root:           t.TempDir(),
		Lease:          time.Minute,
		CommandTimeout: 10 * time.Second,
	}
	env, err := f.Create(context.Background(), "https://example.com/acme/demo.git")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Terminate() })
	return env
}

func discard(stream.Event) {}

func TestLocalExecuteCapturesStreamsSeparately(t *testing.T) {
	env := newLocalEnv(t)

	res, err := env.Execute(context.Background(), `echo out; echo warn >&2`, nil)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, res.Stdout, "out")
	require.Contains(t, res.Stderr, "warn")
	require.NotContains(t, res.Stdout, "warn")
}

func TestLocalStderrWithZeroExitIsSuccess(t *testing.T) {
	env := newLocalEnv(t)

	res, err := env.Execute(context.Background(), `echo informational >&2; exit 0`, nil)
	require.NoError(t, err)
	require.True(t, res.Success())
	require.NotEmpty(t, res.Stderr)
}

func TestLocalExecuteNonZeroExit(t *testing.T) {
	env := newLocalEnv(t)

	res, err := env.Execute(context.Background(), `exit 3`, nil)
	require.NoError(t, err)
	require.False(t, res.Success())
	require.Equal(t, 3, res.ExitCode)
}

func TestLocalExecuteInjectsEnvVars(t *testing.T) {
	env := newLocalEnv(t)

	res, err := env.Execute(context.Background(), `echo "$DEMO_VALUE"`, map[string]string{"DEMO_VALUE": "sesame"})
	require.NoError(t, err)
	require.Contains(t, res.Stdout, "sesame")
}

func TestLocalWriteThenRead(t *testing.T) {
	env := newLocalEnv(t)

	var events []stream.Event
	err := env.WriteFile(context.Background(), "src/app/main.py", "print('hello')\n", func(ev stream.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, stream.KindFileWrite, events[0].Type)
	require.Equal(t, stream.KindFileWriteComplete, events[1].Type)

	content, err := env.ReadFile(context.Background(), "src/app/main.py")
	require.NoError(t, err)
	require.Equal(t, "print('hello')\n", content)
}

func TestLocalReadMissingFileYieldsReadError(t *testing.T) {
	env := newLocalEnv(t)

	_, err := env.ReadFile(context.Background(), "nope.txt")
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	require.Equal(t, "nope.txt", readErr.Path)
}

func TestLocalRejectsPathEscape(t *testing.T) {
	env := newLocalEnv(t)

	_, err := env.ReadFile(context.Background(), "../../etc/passwd")
	require.Error(t, err)

	err = env.WriteFile(context.Background(), "/etc/evil", "x", discard)
	require.Error(t, err)
}

func TestLocalOperationsFailAfterTerminate(t *testing.T) {
	env := newLocalEnv(t)
	require.NoError(t, env.Terminate())
	require.Equal(t, StateTerminated, env.State())

	_, err := env.Execute(context.Background(), "true", nil)
	require.ErrorIs(t, err, ErrEnvironmentClosed)

	_, err = env.ReadFile(context.Background(), "a.txt")
	require.ErrorIs(t, err, ErrEnvironmentClosed)

	err = env.WriteFile(context.Background(), "a.txt", "x", discard)
	require.ErrorIs(t, err, ErrEnvironmentClosed)

	err = env.Clone(context.Background(), "https://example.com/x/y.git", discard)
	require.ErrorIs(t, err, ErrEnvironmentClosed)
}

func TestLocalTerminateIsIdempotent(t *testing.T) {
	env := newLocalEnv(t)
	require.NoError(t, env.Terminate())
	require.NoError(t, env.Terminate())
	require.NoError(t, env.Terminate())
}

func TestLocalCloneFailureCarriesStderr(t *testing.T) {
	env := newLocalEnv(t)

	err := env.Clone(context.Background(), "/nonexistent/never-a-repo", discard)
	var cloneErr *CloneError
	require.ErrorAs(t, err, &cloneErr)
	require.NotEqual(t, 0, cloneErr.ExitCode)
	require.NotEmpty(t, cloneErr.Stderr)
	require.NotEqual(t, StateActive, env.State())
}

func TestLocalLeaseExpiryFailsWithTimeout(t *testing.T) {
	f := &LocalFactory{Root: t.TempDir(), Lease: -time.Second, CommandTimeout: time.Second}
	env, err := f.Create(context.Background(), "https://example.com/a/b.git")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Terminate() })

	_, err = env.Execute(context.Background(), "true", nil)
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
}
