package code

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/patchpilot/patchpilot/internal/observability"
	"github.com/patchpilot/patchpilot/internal/rpc"
	"github.com/patchpilot/patchpilot/internal/stream"
)

// Framing selects the wire framing for the HTTP stream handler.
type Framing string

const (
	FramingSSE    Framing = "sse"
	FramingNDJSON Framing = "ndjson"
)

// Handler serves POST /code, streaming session progress events as SSE
// or NDJSON. Events arrive already ordered; the handler only frames and
// flushes them.
type Handler struct {
	runner  Runner
	framing Framing
	metrics *observability.Metrics
}

// NewHandler constructs a handler for one framing.
func NewHandler(runner Runner, framing Framing, metrics *observability.Metrics) *Handler {
	if framing != FramingNDJSON {
		framing = FramingSSE
	}
	return &Handler{runner: runner, framing: framing, metrics: metrics}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	transport := string(h.framing)
	if r.Method != http.MethodPost {
		h.metrics.RecordTransportError(transport, "method_not_allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpc.CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordTransportError(transport, "decode")
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.metrics.RecordTransportError(transport, "no_flusher")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.metrics.IncActiveSessions(transport)
	defer h.metrics.DecActiveSessions(transport)

	var writer stream.Writer
	switch h.framing {
	case FramingNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		writer = stream.NewNDJSONWriter(w, flusher)
	default:
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		writer = stream.NewSSEWriter(w, flusher)
	}
	w.WriteHeader(http.StatusOK)

	events := h.runner.Run(r.Context(), req)
	for ev := range events {
		if err := writer.Write(ev); err != nil {
			h.metrics.RecordTransportError(transport, "write")
			// Drain so the session goroutine can finish and tear down.
			for range events {
			}
			return
		}
	}
}
