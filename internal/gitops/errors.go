package gitops

import "fmt"

// PushError marks a failed branch push. Stderr is captured for the
// progress stream; the exit code is the authoritative failure signal.
type PushError struct {
	Branch   string
	Stderr   string
	ExitCode int
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push branch %s: exit %d: %s", e.Branch, e.ExitCode, firstLine(e.Stderr))
}

// PRCreationError marks a failed pull-request creation. The pushed
// branch survives, so callers can still report partial success.
type PRCreationError struct {
	Stderr   string
	ExitCode int
}

func (e *PRCreationError) Error() string {
	return fmt.Sprintf("create pull request: exit %d: %s", e.ExitCode, firstLine(e.Stderr))
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
