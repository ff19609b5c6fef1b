package telemetry

import "go.uber.org/zap"

// Sink receives named events with attribute maps. Implementations are
// fire-and-forget: Record must never block or fail the request path.
type Sink interface {
	Record(event string, attrs map[string]any)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(string, map[string]any) {}

// ZapSink writes telemetry events to a structured logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps a logger; a nil logger degrades to a no-op.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Record(event string, attrs map[string]any) {
	fields := make([]zap.Field, 0, len(attrs))
	for k, v := range attrs {
		fields = append(fields, zap.Any(k, v))
	}
	s.logger.Info("telemetry: "+event, fields...)
}

// Recorder is a test double capturing recorded events in order.
type Recorder struct {
	Events []RecordedEvent
}

// RecordedEvent is one captured Record call.
type RecordedEvent struct {
	Name  string
	Attrs map[string]any
}

func (r *Recorder) Record(event string, attrs map[string]any) {
	r.Events = append(r.Events, RecordedEvent{Name: event, Attrs: attrs})
}
