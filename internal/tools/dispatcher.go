package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patchpilot/patchpilot/internal/sandbox"
	"github.com/patchpilot/patchpilot/internal/stream"
)

// Call is one tool invocation extracted from a reasoning turn.
type Call struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Result is the normalized outcome of a successful invocation. Only
// calls that actually ran produce a Result; rejected or failed calls
// surface as errors instead.
type Result struct {
	Type        string `json:"type"`
	FilePath    string `json:"file_path,omitempty"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
	Success     bool   `json:"success"`
}

// ProjectInspection carries the structured findings of an
// inspect_project invocation.
type ProjectInspection struct {
	ProjectType     string   `json:"project_type"`
	PrimaryLanguage string   `json:"primary_language"`
	ComplexityLevel string   `json:"complexity_level"`
	Insights        string   `json:"insights"`
	Frameworks      []string `json:"frameworks,omitempty"`
}

// Dispatcher executes validated invocations against one execution
// environment, emitting progress events as side effects happen.
type Dispatcher struct {
	env       sandbox.Environment
	repoTitle string
	emit      sandbox.EmitFunc
	logger    *zap.Logger
}

// NewDispatcher wires a dispatcher to an environment. repoURL seeds the
// title used when a README modify targets a missing file; a nil emit
// discards progress events; a nil logger degrades to a no-op.
func NewDispatcher(env sandbox.Environment, repoURL string, emit sandbox.EmitFunc, logger *zap.Logger) *Dispatcher {
	if emit == nil {
		emit = func(stream.Event) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{env: env, repoTitle: repoTitle(repoURL), emit: emit, logger: logger}
}

// Dispatch validates and executes a single invocation. A returned
// *InputError means nothing ran; a *ExecutionError means the
// environment operation itself failed. Either way sibling invocations
// in the same turn may still proceed.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (*Result, error) {
	if err := ValidateCall(call.Name, call.Args); err != nil {
		d.logger.Warn("tool call rejected",
			zap.String("tool", call.Name),
			zap.Error(err))
		return nil, err
	}

	switch call.Name {
	case NameInspectProject:
		return d.inspectProject(call)
	case NameCreateFile, NameModifyFile:
		return d.writeFile(ctx, call)
	case NameDeleteFile:
		return d.deleteFile(ctx, call)
	case NameReadFile:
		return d.readFile(ctx, call)
	}
	return nil, &InputError{Tool: call.Name, Reason: "unknown tool"}
}

func (d *Dispatcher) inspectProject(call Call) (*Result, error) {
	insp := ProjectInspection{
		ProjectType:     stringArg(call.Args, "project_type"),
		PrimaryLanguage: stringArg(call.Args, "primary_language"),
		ComplexityLevel: stringArg(call.Args, "complexity_level"),
		Insights:        stringArg(call.Args, "insights"),
	}
	if raw, ok := call.Args["frameworks"].([]interface{}); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				insp.Frameworks = append(insp.Frameworks, s)
			}
		}
	}
	summary := fmt.Sprintf("%s %s project (%s)", insp.ComplexityLevel, insp.PrimaryLanguage, insp.ProjectType)
	if len(insp.Frameworks) > 0 {
		summary += " using " + strings.Join(insp.Frameworks, ", ")
	}
	d.emit(stream.Event{
		Type:    stream.KindAIAnalysis,
		Message: summary,
		Payload: map[string]any{
			"project_type":     insp.ProjectType,
			"primary_language": insp.PrimaryLanguage,
			"complexity_level": insp.ComplexityLevel,
			"insights":         insp.Insights,
			"frameworks":       insp.Frameworks,
		},
	})
	return &Result{
		Type:        call.Name,
		Content:     insp.Insights,
		Description: summary,
		Success:     true,
	}, nil
}

func (d *Dispatcher) writeFile(ctx context.Context, call Call) (*Result, error) {
	path := stringArg(call.Args, "file_path")
	content := stringArg(call.Args, "content")
	desc := stringArg(call.Args, "description")
	if call.Name == NameModifyFile && isReadme(path) {
		content = d.readmeContent(ctx, path, content)
	}
	if err := d.env.WriteFile(ctx, path, content, d.emit); err != nil {
		return nil, &ExecutionError{Tool: call.Name, Err: err}
	}
	d.emit(stream.Event{
		Type:    stream.KindAIToolResult,
		Message: fmt.Sprintf("%s: %s", call.Name, path),
		File:    path,
		Payload: map[string]any{"description": desc},
	})
	return &Result{
		Type:        call.Name,
		FilePath:    path,
		Content:     content,
		Description: desc,
		Reasoning:   stringArg(call.Args, "reasoning"),
		Success:     true,
	}, nil
}

// readmeContent preserves an existing README by appending the new text
// after it. A missing README is seeded with a repository title first.
func (d *Dispatcher) readmeContent(ctx context.Context, path, content string) string {
	existing, err := d.env.ReadFile(ctx, path)
	if err != nil {
		return "# " + d.repoTitle + "\n\n" + content
	}
	return strings.TrimRight(existing, "\n") + "\n\n" + content
}

func (d *Dispatcher) deleteFile(ctx context.Context, call Call) (*Result, error) {
	path := stringArg(call.Args, "file_path")
	desc := stringArg(call.Args, "description")
	res, err := d.env.Execute(ctx, "rm -f -- "+quoteArg(path), nil)
	if err != nil {
		return nil, &ExecutionError{Tool: call.Name, Err: err}
	}
	if !res.Success() {
		return nil, &ExecutionError{
			Tool: call.Name,
			Err:  fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr)),
		}
	}
	d.emit(stream.Event{
		Type:    stream.KindAIToolResult,
		Message: fmt.Sprintf("%s: %s", call.Name, path),
		File:    path,
		Payload: map[string]any{"description": desc},
	})
	return &Result{
		Type:        call.Name,
		FilePath:    path,
		Description: desc,
		Reasoning:   stringArg(call.Args, "reasoning"),
		Success:     true,
	}, nil
}

func (d *Dispatcher) readFile(ctx context.Context, call Call) (*Result, error) {
	path := stringArg(call.Args, "file_path")
	content, err := d.env.ReadFile(ctx, path)
	if err != nil {
		return nil, &ExecutionError{Tool: call.Name, Err: err}
	}
	d.emit(stream.Event{
		Type:    stream.KindAIToolResult,
		Message: fmt.Sprintf("read %s (%d bytes)", path, len(content)),
		File:    path,
	})
	return &Result{
		Type:     call.Name,
		FilePath: path,
		Content:  content,
		Success:  true,
	}, nil
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func isReadme(path string) bool {
	base := path
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.EqualFold(base, "README.md")
}

// repoTitle derives a display title from a clone URL.
func repoTitle(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return "Project"
	}
	return trimmed
}

// quoteArg wraps a value in single quotes for interpolation into a
// shell command line.
func quoteArg(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
