package orchestrator

import (
	"fmt"
	"strings"

	"github.com/patchpilot/patchpilot/internal/semantic"
)

// buildSystemPrompt returns the base instruction for the reasoning service.
func buildSystemPrompt() string {
	return strings.TrimSpace(`
You are Patchpilot, an autonomous coding agent working inside an isolated clone of a repository. Your job is to implement the requested change end to end.

Rules:
- Start by calling inspect_project once to report what you see.
- Use read_file before modifying any existing file.
- Use create_file for new files, modify_file for existing ones, and delete_file for files the change makes obsolete; always send complete file content.
- Every change needs a one-line description.
- Produce working, complete code plus a documentation note for non-trivial changes. Prefer minimal diffs over rewrites.`)
}

// buildUserPrompt embeds the task with sampled repository context.
func buildUserPrompt(prompt string, ranked []semantic.Result, maxFileBytes int) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(strings.TrimSpace(prompt))

	if len(ranked) > 0 {
		b.WriteString("\n\nRelevant files from the repository:\n")
		for _, r := range ranked {
			content := r.Content
			if maxFileBytes > 0 && len(content) > maxFileBytes {
				content = content[:maxFileBytes] + "\n... [truncated]"
			}
			fmt.Fprintf(&b, "File: %s\n%s\n---\n", r.Path, content)
		}
	}
	return b.String()
}

// buildRetryPrompt asks for a missing deliverable category by name.
func buildRetryPrompt(category string) string {
	switch category {
	case categoryDocs:
		return "The change set has no documentation yet. Add or update a markdown file describing what changed and why."
	default:
		return "The change set has no source files yet. Implement the requested change in code using create_file or modify_file."
	}
}
