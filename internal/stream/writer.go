package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxRecordSize is the maximum serialized event size (256 KiB).
const MaxRecordSize = 256 * 1024

// Writer serializes one event onto an outward transport. Implementations
// forward immediately; ordering is inherited from the caller.
type Writer interface {
	Write(ev Event) error
}

// NDJSONWriter frames each event as one JSON object per line.
type NDJSONWriter struct {
	w       *bufio.Writer
	flusher http.Flusher
}

// NewNDJSONWriter wraps w; flusher may be nil when the transport buffers.
func NewNDJSONWriter(w io.Writer, flusher http.Flusher) *NDJSONWriter {
	return &NDJSONWriter{w: bufio.NewWriter(w), flusher: flusher}
}

func (n *NDJSONWriter) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if len(data) > MaxRecordSize {
		return fmt.Errorf("event size %d exceeds limit %d", len(data), MaxRecordSize)
	}
	if _, err := n.w.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write delimiter: %w", err)
	}
	if err := n.w.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

// SSEWriter frames each event as a server-sent-event data record.
type SSEWriter struct {
	w       *bufio.Writer
	flusher http.Flusher
}

// NewSSEWriter wraps w; flusher may be nil when the transport buffers.
func NewSSEWriter(w io.Writer, flusher http.Flusher) *SSEWriter {
	return &SSEWriter{w: bufio.NewWriter(w), flusher: flusher}
}

func (s *SSEWriter) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if len(data) > MaxRecordSize {
		return fmt.Errorf("event size %d exceeds limit %d", len(data), MaxRecordSize)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
