package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitterPreservesOrder(t *testing.T) {
	e := NewEmitter(4)

	go func() {
		ctx := context.Background()
		e.Emit(ctx, Status("one", nil))
		e.Emit(ctx, Info("two"))
		e.Emit(ctx, Completion("three", nil))
		e.Close()
	}()

	var got []string
	for ev := range e.Events() {
		got = append(got, ev.Message)
	}
	require.Equal(t, []string{"one", "two", "three"}, got)
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	e := NewEmitter(1)
	e.Close()

	ok := e.Emit(context.Background(), Info("late"))
	require.False(t, ok)
}

func TestEmitUnblocksOnContextCancel(t *testing.T) {
	e := NewEmitter(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, e.Emit(ctx, Info("fills the buffer")))

	done := make(chan bool, 1)
	go func() {
		done <- e.Emit(ctx, Info("blocked"))
	}()

	cancel()
	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Emit did not unblock after cancellation")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e := NewEmitter(1)
	e.Close()
	e.Close()
}

func TestTerminalEvents(t *testing.T) {
	require.True(t, Completion("done", nil).Terminal())
	require.True(t, Error("boom").Terminal())
	require.False(t, SoftError("recovered").Terminal())
	require.False(t, Status("working", nil).Terminal())
}
