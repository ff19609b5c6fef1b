package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/sandbox"
	"github.com/patchpilot/patchpilot/internal/stream"
)

// memEnvironment is an in-memory Environment double recording mutations.
type memEnvironment struct {
	files      map[string]string
	writes     []string
	commands   []string
	execResult *sandbox.CommandResult
	readErr    error
	writeErr   error
}

func newMemEnvironment() *memEnvironment {
	return &memEnvironment{files: map[string]string{}}
}

func (m *memEnvironment) ID() string            { return "mem_test" }
func (m *memEnvironment) Backing() sandbox.Kind { return sandbox.KindLocal }
func (m *memEnvironment) State() sandbox.State  { return sandbox.StateActive }

func (m *memEnvironment) Clone(context.Context, string, sandbox.EmitFunc) error { return nil }

func (m *memEnvironment) Execute(_ context.Context, command string, _ map[string]string) (sandbox.CommandResult, error) {
	m.commands = append(m.commands, command)
	if m.execResult != nil {
		res := *m.execResult
		res.Command = command
		return res, nil
	}
	if rest, ok := strings.CutPrefix(command, "rm -f -- "); ok {
		delete(m.files, strings.Trim(rest, "'"))
	}
	return sandbox.CommandResult{Command: command}, nil
}

func (m *memEnvironment) ReadFile(_ context.Context, path string) (string, error) {
	if m.readErr != nil {
		return "", m.readErr
	}
	content, ok := m.files[path]
	if !ok {
		return "", &sandbox.ReadError{Path: path, Err: errors.New("no such file")}
	}
	return content, nil
}

func (m *memEnvironment) WriteFile(_ context.Context, path, content string, emit sandbox.EmitFunc) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	emit(stream.Event{Type: stream.KindFileWrite, File: path})
	m.files[path] = content
	m.writes = append(m.writes, path)
	emit(stream.Event{Type: stream.KindFileWriteComplete, File: path})
	return nil
}

func (m *memEnvironment) Terminate() error { return nil }

func collector(events *[]stream.Event) sandbox.EmitFunc {
	return func(ev stream.Event) { *events = append(*events, ev) }
}

func TestDispatchCreateFile(t *testing.T) {
	env := newMemEnvironment()
	var events []stream.Event
	d := NewDispatcher(env, "https://github.com/acme/demo", collector(&events), nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: NameCreateFile,
		Args: map[string]interface{}{
			"file_path":   "api/health.go",
			"content":     "package api\n",
			"description": "add health handler",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "api/health.go", res.FilePath)
	assert.Equal(t, "add health handler", res.Description)
	assert.Equal(t, "package api\n", env.files["api/health.go"])

	// file_write, file_write_complete, then the tool result record.
	require.Len(t, events, 3)
	assert.Equal(t, stream.KindFileWrite, events[0].Type)
	assert.Equal(t, stream.KindFileWriteComplete, events[1].Type)
	assert.Equal(t, stream.KindAIToolResult, events[2].Type)
}

func TestDispatchReadFile(t *testing.T) {
	env := newMemEnvironment()
	env.files["README.md"] = "# demo"
	d := NewDispatcher(env, "https://github.com/acme/demo", nil, nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: NameReadFile,
		Args: map[string]interface{}{"file_path": "README.md"},
	})
	require.NoError(t, err)
	assert.Equal(t, "# demo", res.Content)
	assert.Equal(t, "README.md", res.FilePath)
}

func TestDispatchReadMissingFile(t *testing.T) {
	env := newMemEnvironment()
	d := NewDispatcher(env, "https://github.com/acme/demo", nil, nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: NameReadFile,
		Args: map[string]interface{}{"file_path": "absent.txt"},
	})
	assert.Nil(t, res)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	var readErr *sandbox.ReadError
	assert.ErrorAs(t, err, &readErr)
}

func TestDispatchInspectProject(t *testing.T) {
	env := newMemEnvironment()
	var events []stream.Event
	d := NewDispatcher(env, "https://github.com/acme/demo", collector(&events), nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: NameInspectProject,
		Args: map[string]interface{}{
			"project_type":     "web service",
			"primary_language": "Go",
			"complexity_level": "moderate",
			"insights":         "REST API with chi router",
			"frameworks":       []interface{}{"chi", "sqlx"},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Description, "moderate Go project")
	assert.Contains(t, res.Description, "chi")

	require.Len(t, events, 1)
	assert.Equal(t, stream.KindAIAnalysis, events[0].Type)
	assert.Equal(t, "REST API with chi router", events[0].Payload["insights"])
}

func TestDispatchRejectsInvalidInput(t *testing.T) {
	env := newMemEnvironment()
	var events []stream.Event
	d := NewDispatcher(env, "https://github.com/acme/demo", collector(&events), nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: NameCreateFile,
		Args: map[string]interface{}{"file_path": "x.go"}, // content missing
	})
	assert.Nil(t, res)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, NameCreateFile, inputErr.Tool)

	// Rejected calls reach neither the environment nor the stream.
	assert.Empty(t, env.writes)
	assert.Empty(t, events)
}

func TestDispatchRejectsUnknownTool(t *testing.T) {
	d := NewDispatcher(newMemEnvironment(), "https://github.com/acme/demo", nil, nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: "delete_everything",
		Args: map[string]interface{}{},
	})
	assert.Nil(t, res)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Contains(t, inputErr.Reason, "unknown tool")
}

func TestDispatchRejectsBadComplexityEnum(t *testing.T) {
	d := NewDispatcher(newMemEnvironment(), "https://github.com/acme/demo", nil, nil)

	_, err := d.Dispatch(context.Background(), Call{
		Name: NameInspectProject,
		Args: map[string]interface{}{
			"project_type":     "cli",
			"primary_language": "Go",
			"complexity_level": "extreme",
			"insights":         "n/a",
		},
	})
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Contains(t, inputErr.Reason, "complexity_level")
}

func TestDispatchDeleteFile(t *testing.T) {
	env := newMemEnvironment()
	env.files["legacy.py"] = "old\n"
	var events []stream.Event
	d := NewDispatcher(env, "https://github.com/acme/demo", collector(&events), nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: NameDeleteFile,
		Args: map[string]interface{}{
			"file_path":   "legacy.py",
			"description": "remove superseded module",
			"reasoning":   "replaced by the new validator",
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "legacy.py", res.FilePath)
	assert.Equal(t, "replaced by the new validator", res.Reasoning)
	assert.NotContains(t, env.files, "legacy.py")
	require.Len(t, env.commands, 1)
	assert.Equal(t, "rm -f -- 'legacy.py'", env.commands[0])

	require.Len(t, events, 1)
	assert.Equal(t, stream.KindAIToolResult, events[0].Type)
}

func TestDispatchDeleteFileCommandFailure(t *testing.T) {
	env := newMemEnvironment()
	env.execResult = &sandbox.CommandResult{ExitCode: 1, Stderr: "rm: permission denied"}
	d := NewDispatcher(env, "https://github.com/acme/demo", nil, nil)

	res, err := d.Dispatch(context.Background(), Call{
		Name: NameDeleteFile,
		Args: map[string]interface{}{"file_path": "x.py", "description": "drop"},
	})
	assert.Nil(t, res)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "permission denied")
}

func TestModifyReadmeAppends(t *testing.T) {
	env := newMemEnvironment()
	env.files["README.md"] = "# demo\n"
	d := NewDispatcher(env, "https://github.com/acme/demo", nil, nil)

	_, err := d.Dispatch(context.Background(), Call{
		Name: NameModifyFile,
		Args: map[string]interface{}{
			"file_path":   "README.md",
			"content":     "## Usage\n\nRun main.py.\n",
			"description": "document usage",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "# demo\n\n## Usage\n\nRun main.py.\n", env.files["README.md"])
}

func TestModifyMissingReadmeSeedsTitle(t *testing.T) {
	env := newMemEnvironment()
	d := NewDispatcher(env, "https://github.com/acme/demo.git", nil, nil)

	_, err := d.Dispatch(context.Background(), Call{
		Name: NameModifyFile,
		Args: map[string]interface{}{
			"file_path":   "README.md",
			"content":     "Adds validation.\n",
			"description": "document the change",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "# demo\n\nAdds validation.\n", env.files["README.md"])
}

func TestModifyNonReadmeOverwrites(t *testing.T) {
	env := newMemEnvironment()
	env.files["app.py"] = "old\n"
	d := NewDispatcher(env, "https://github.com/acme/demo", nil, nil)

	_, err := d.Dispatch(context.Background(), Call{
		Name: NameModifyFile,
		Args: map[string]interface{}{
			"file_path":   "app.py",
			"content":     "new\n",
			"description": "rewrite app",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "new\n", env.files["app.py"])
}

func TestCatalogIsFixed(t *testing.T) {
	names := make([]string, 0, 5)
	for _, s := range Catalog() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{NameInspectProject, NameCreateFile, NameModifyFile, NameDeleteFile, NameReadFile}, names)
}
