package orchestrator

import (
	"fmt"
	"strings"

	"github.com/patchpilot/patchpilot/internal/gitops"
)

// Phase is the lifecycle phase of one coding session.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseGenerating Phase = "generating"
	PhaseVerifying  Phase = "verifying"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Request is one incoming coding task. Model optionally overrides the
// default model route for this session.
type Request struct {
	RepoURL string `json:"repoUrl"`
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty"`
}

// Validate rejects requests before any resource is provisioned.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt is required")
	}
	if !strings.HasPrefix(r.RepoURL, "https://github.com/") {
		return fmt.Errorf("repoUrl must be an https GitHub URL")
	}
	rest := strings.TrimPrefix(r.RepoURL, "https://github.com/")
	parts := strings.Split(strings.TrimSuffix(strings.TrimRight(rest, "/"), ".git"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("repoUrl must name owner and repository")
	}
	return nil
}

// Summary is the final outcome of one session.
type Summary struct {
	Outcome string // completed, partial, or failed
	Phase   Phase
	Turns   int
	Changes []gitops.Change
	Branch  string
	PRURL   string
	Err     error
}

// changeSet accumulates the change manifest, keeping first-seen order
// and letting a later touch upgrade details without duplicating paths.
type changeSet struct {
	order  []string
	byPath map[string]*gitops.Change
}

func newChangeSet() *changeSet {
	return &changeSet{byPath: make(map[string]*gitops.Change)}
}

func (c *changeSet) record(ch gitops.Change) {
	existing, ok := c.byPath[ch.Path]
	if !ok {
		copied := ch
		c.byPath[ch.Path] = &copied
		c.order = append(c.order, ch.Path)
		return
	}
	// A file created this session stays "created" even if modified
	// later; a deletion overrides either and drops the content.
	if ch.Description != "" {
		existing.Description = ch.Description
	}
	if ch.Reasoning != "" {
		existing.Reasoning = ch.Reasoning
	}
	if ch.Action == "deleted" {
		existing.Action = "deleted"
		existing.Content = ""
		return
	}
	if existing.Action == "deleted" {
		existing.Action = ch.Action
	}
	if ch.Content != "" {
		existing.Content = ch.Content
	}
}

func (c *changeSet) list() []gitops.Change {
	out := make([]gitops.Change, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, *c.byPath[p])
	}
	return out
}
