package mock

import (
	"context"

	"github.com/patchpilot/patchpilot/internal/llm"
)

// Provider is a test double implementing llm.Provider. Responses can be
// scripted per call for turn-loop tests.
type Provider struct {
	NameValue    string
	ChatFn       func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	Responses    []llm.ChatResponse
	StreamChunks []llm.StreamChunk
	StreamErr    error

	Requests []llm.ChatRequest
	calls    int
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.Requests = append(p.Requests, req)
	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	if len(p.Responses) > 0 {
		idx := p.calls
		if idx >= len(p.Responses) {
			idx = len(p.Responses) - 1
		}
		p.calls++
		return p.Responses[idx], nil
	}
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: "mock",
		},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	ch := make(chan llm.StreamChunk, len(p.StreamChunks))
	errCh := make(chan error, 1)
	go func() {
		defer close(ch)
		defer close(errCh)
		for _, c := range p.StreamChunks {
			ch <- c
		}
		if p.StreamErr != nil {
			errCh <- p.StreamErr
		}
	}()
	return ch, errCh
}
