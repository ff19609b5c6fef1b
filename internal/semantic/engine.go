package semantic

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/patchpilot/patchpilot/internal/sandbox"
)

// Engine ranks repository files by relevance to a change request. It
// works against an execution environment rather than the local disk,
// so ranking happens wherever the clone actually lives.
type Engine struct {
	maxFiles     int
	maxFileBytes int
}

// Result captures one ranked file.
type Result struct {
	Path    string
	Score   float64
	Snippet string
	Content string
}

// NewEngine constructs an engine with sampling bounds.
func NewEngine(maxFiles int, maxFileBytes int) *Engine {
	if maxFiles <= 0 {
		maxFiles = 200
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 64 * 1024
	}
	return &Engine{maxFiles: maxFiles, maxFileBytes: maxFileBytes}
}

// skipExt lists extensions never worth sampling into model context.
var skipExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".woff": true,
	".woff2": true, ".ttf": true, ".lock": true, ".sum": true,
}

// Rank returns the top-limit files in the environment ordered by token
// overlap with the prompt. Tracked files are preferred; when the clone
// has no git metadata a plain find is used instead.
func (e *Engine) Rank(ctx context.Context, env sandbox.Environment, prompt string, limit int) ([]Result, error) {
	if e == nil || env == nil {
		return nil, fmt.Errorf("semantic engine unavailable")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if limit <= 0 {
		limit = 5
	}

	qTokens := tokenize(prompt)
	if len(qTokens) == 0 {
		return nil, fmt.Errorf("prompt too short")
	}

	paths, err := e.listFiles(ctx, env)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, limit*2)
	for _, rel := range paths {
		if skipExt[strings.ToLower(path.Ext(rel))] {
			continue
		}
		content, err := env.ReadFile(ctx, rel)
		if err != nil {
			continue
		}
		if len(content) > e.maxFileBytes {
			content = content[:e.maxFileBytes]
		}
		score := overlapScore(qTokens, tokenize(content))
		// README files always carry orientation value.
		if strings.HasPrefix(strings.ToLower(path.Base(rel)), "readme") {
			score += 0.1
		}
		if score <= 0 {
			continue
		}
		results = append(results, Result{
			Path:    rel,
			Score:   score,
			Snippet: summarize(content),
			Content: content,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Path < results[j].Path
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) listFiles(ctx context.Context, env sandbox.Environment) ([]string, error) {
	res, err := env.Execute(ctx, "git ls-files", nil)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if !res.Success() || strings.TrimSpace(res.Stdout) == "" {
		res, err = env.Execute(ctx, `find . -type f -not -path './.git/*' | sed 's|^\./||'`, nil)
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
	}

	var paths []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paths = append(paths, line)
		if len(paths) >= e.maxFiles {
			break
		}
	}
	return paths, nil
}

func overlapScore(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		seen[t] = struct{}{}
	}
	var overlap int
	for _, q := range query {
		if _, ok := seen[q]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(query))
}

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(s string) []string {
	matches := tokenRe.FindAllString(strings.ToLower(s), -1)
	if len(matches) == 0 {
		return nil
	}
	return matches
}

func summarize(content string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if len(trim) > 200 {
			return trim[:200] + "..."
		}
		return trim
	}
	if len(content) > 200 {
		return content[:200] + "..."
	}
	return content
}
