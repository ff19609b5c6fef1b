package stream

import (
	"context"
	"sync"
)

// Emitter delivers events to a consumer channel in emission order. One
// producer goroutine owns an Emitter; events for a request are totally
// ordered by the channel.
type Emitter struct {
	ch chan Event

	mu     sync.Mutex
	closed bool
}

// NewEmitter creates an emitter with a buffered channel.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 16
	}
	return &Emitter{ch: make(chan Event, buffer)}
}

// Emit forwards an event, blocking until the consumer accepts it so causal
// order is preserved. Returns false when the emitter is closed or the
// context is done; the event is dropped in that case.
func (e *Emitter) Emit(ctx context.Context, ev Event) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	select {
	case e.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Events returns the read-only event channel. It is closed by Close.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close ends the stream. Safe to call multiple times; only the producer
// goroutine may call it.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
