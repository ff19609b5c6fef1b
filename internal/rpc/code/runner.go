package code

import (
	"context"

	"github.com/patchpilot/patchpilot/internal/orchestrator"
	"github.com/patchpilot/patchpilot/internal/rpc"
	"github.com/patchpilot/patchpilot/internal/stream"
)

// Runner starts a coding session and yields its ordered event stream.
// The returned channel closes when the session ends; cancelling ctx
// aborts the session and releases its environment.
type Runner interface {
	Run(ctx context.Context, req rpc.CodeRequest) <-chan stream.Event
}

// SessionRunner adapts the orchestrator to the transport handlers. One
// goroutine per session owns the emitter.
type SessionRunner struct {
	Orchestrator *orchestrator.Orchestrator
	Buffer       int
}

func (s *SessionRunner) Run(ctx context.Context, req rpc.CodeRequest) <-chan stream.Event {
	emitter := stream.NewEmitter(s.Buffer)
	go s.Orchestrator.Run(ctx, orchestrator.Request{
		RepoURL: req.RepoURL,
		Prompt:  req.Prompt,
		Model:   req.Model,
	}, emitter)
	return emitter.Events()
}
