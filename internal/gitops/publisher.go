package gitops

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/sandbox"
	"github.com/patchpilot/patchpilot/internal/stream"
)

// Change is one workspace mutation included in the published commit.
// Content is empty for deletions.
type Change struct {
	Path        string `json:"path"`
	Action      string `json:"action"` // created, modified, or deleted
	Description string `json:"description,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Result reports how far publication got. Pushed without a PR URL is a
// partial success: the branch exists remotely and can be opened by hand.
type Result struct {
	Branch        string `json:"branch"`
	CommitMessage string `json:"commit_message"`
	Committed     bool   `json:"committed"`
	Pushed        bool   `json:"pushed"`
	PRURL         string `json:"pr_url,omitempty"`
}

// Publisher drives the commit, push, and pull-request sequence inside
// an execution environment. Every command outcome is judged by exit
// code; stderr chatter from git never fails a step on its own.
type Publisher struct {
	cfg    config.GitConfig
	logger *zap.Logger
}

// NewPublisher builds a publisher. A nil logger degrades to a no-op.
func NewPublisher(cfg config.GitConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, logger: logger}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// BranchName derives a feature branch name from the request prompt,
// capped at 50 characters after the prefix.
func BranchName(prompt string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(prompt), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "change"
	}
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	return "feature/" + slug
}

// CommitMessage synthesizes a conventional-commit message from the
// prompt and up to three change descriptions.
func CommitMessage(prompt string, changes []Change) string {
	title := strings.TrimSpace(prompt)
	if len(title) > 72 {
		title = title[:72]
	}
	var b strings.Builder
	b.WriteString("feat: ")
	b.WriteString(title)

	var described int
	for _, ch := range changes {
		if ch.Description == "" {
			continue
		}
		if described == 0 {
			b.WriteString("\n")
		}
		b.WriteString("\n- ")
		b.WriteString(ch.Description)
		described++
		if described == 3 {
			break
		}
	}
	return b.String()
}

// Publish commits all workspace changes on a fresh branch, pushes it,
// and opens a pull request. Each git step emits a git event before the
// command runs; failures after a successful push still return the
// partially filled Result.
func (p *Publisher) Publish(ctx context.Context, env sandbox.Environment, repoURL, prompt string, changes []Change, emit sandbox.EmitFunc) (Result, error) {
	if emit == nil {
		emit = func(stream.Event) {}
	}
	res := Result{
		Branch:        BranchName(prompt),
		CommitMessage: CommitMessage(prompt, changes),
	}

	steps := []struct {
		label   string
		command string
	}{
		{"configure author", fmt.Sprintf("git config user.name %s && git config user.email %s",
			quote(p.cfg.AuthorName), quote(p.cfg.AuthorEmail))},
		{"create branch", "git checkout -b " + quote(res.Branch)},
		{"stage changes", "git add -A"},
		{"commit", "git commit -m " + quote(res.CommitMessage)},
	}
	for _, step := range steps {
		emit(stream.Git(step.label, step.command))
		out, err := env.Execute(ctx, step.command, nil)
		if err != nil {
			return res, fmt.Errorf("%s: %w", step.label, err)
		}
		if !out.Success() {
			return res, fmt.Errorf("%s: exit %d: %s", step.label, out.ExitCode, firstLine(out.Stderr))
		}
	}
	res.Committed = true

	if p.cfg.Token == "" {
		p.logger.Info("no git token configured, skipping push and pull request",
			zap.String("branch", res.Branch))
		emit(stream.Info("no credentials configured, changes remain in the workspace on " + res.Branch))
		return res, nil
	}

	if err := p.push(ctx, env, repoURL, res.Branch, emit); err != nil {
		return res, err
	}
	res.Pushed = true

	prURL, err := p.createPR(ctx, env, prompt, res.Branch, changes, emit)
	if err != nil {
		// Branch is live even though the PR is not.
		return res, err
	}
	res.PRURL = prURL
	return res, nil
}

func (p *Publisher) push(ctx context.Context, env sandbox.Environment, repoURL, branch string, emit sandbox.EmitFunc) error {
	authURL, ok := authenticatedURL(repoURL, p.cfg.Token)
	if ok {
		// Redact the token from anything that reaches the stream.
		emit(stream.Git("set authenticated remote", "git remote set-url origin "+redact(authURL, p.cfg.Token)))
		out, err := env.Execute(ctx, "git remote set-url origin "+quote(authURL), nil)
		if err != nil {
			return fmt.Errorf("set remote: %w", err)
		}
		if !out.Success() {
			return fmt.Errorf("set remote: exit %d", out.ExitCode)
		}
	}

	cmd := "git push -u origin " + quote(branch)
	emit(stream.Git("push branch", cmd))
	out, err := env.Execute(ctx, cmd, nil)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if !out.Success() {
		return &PushError{Branch: branch, Stderr: out.Stderr, ExitCode: out.ExitCode}
	}
	// git writes progress to stderr on success. Only warn if it also
	// carries refusal markers alongside a zero exit code.
	if suspicious(out.Stderr) {
		p.logger.Warn("push succeeded with suspicious stderr",
			zap.String("branch", branch),
			zap.String("stderr", firstLine(out.Stderr)))
		emit(stream.Info("push reported warnings: " + firstLine(out.Stderr)))
	}
	return nil
}

func (p *Publisher) createPR(ctx context.Context, env sandbox.Environment, prompt, branch string, changes []Change, emit sandbox.EmitFunc) (string, error) {
	title := strings.TrimSpace(prompt)
	if len(title) > 72 {
		title = title[:72]
	}
	var body strings.Builder
	body.WriteString("Automated change for: ")
	body.WriteString(strings.TrimSpace(prompt))
	if len(changes) > 0 {
		body.WriteString("\n\nFiles touched:\n")
		for _, ch := range changes {
			fmt.Fprintf(&body, "- %s (%s)\n", ch.Path, ch.Action)
		}
	}

	cmd := fmt.Sprintf("gh pr create --title %s --body %s --head %s",
		quote(title), quote(body.String()), quote(branch))
	emit(stream.Git("create pull request", cmd))

	out, err := env.Execute(ctx, cmd, map[string]string{"GH_TOKEN": p.cfg.Token})
	if err != nil {
		return "", fmt.Errorf("create pull request: %w", err)
	}
	if !out.Success() {
		return "", &PRCreationError{Stderr: out.Stderr, ExitCode: out.ExitCode}
	}

	url := FindPRURL(out.Stdout + "\n" + out.Stderr)
	if url == "" {
		p.logger.Warn("pull request created but no URL found in output")
	}
	return url, nil
}

var prURLRe = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/\d+`)

// FindPRURL extracts the first pull-request URL from command output.
func FindPRURL(output string) string {
	return prURLRe.FindString(output)
}

// suspicious reports refusal markers in stderr of a zero-exit command.
func suspicious(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "rejected") || strings.Contains(lower, "fatal:")
}

// authenticatedURL rewrites an https GitHub clone URL to embed a token.
func authenticatedURL(repoURL, token string) (string, bool) {
	if token == "" || !strings.HasPrefix(repoURL, "https://") {
		return "", false
	}
	return "https://x-access-token:" + token + "@" + strings.TrimPrefix(repoURL, "https://"), true
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
