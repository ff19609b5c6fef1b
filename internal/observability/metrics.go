package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the daemon.
type Metrics struct {
	registry        *prometheus.Registry
	Sessions        *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	Turns           *prometheus.HistogramVec
	ToolCalls       *prometheus.CounterVec
	Provisioning    *prometheus.CounterVec
	GitOps          *prometheus.CounterVec
	ActiveSessions  *prometheus.GaugeVec
	TransportErrs   *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with session collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patchpilot_sessions_total",
		Help: "Completed coding sessions by outcome",
	}, []string{"outcome"})

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "patchpilot_session_duration_seconds",
		Help:    "End-to-end session duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	turns := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "patchpilot_session_turns",
		Help:    "Reasoning turns consumed per session",
		Buckets: []float64{1, 2, 3, 4, 5, 6},
	}, []string{"outcome"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patchpilot_tool_calls_total",
		Help: "Tool invocations by tool name and result",
	}, []string{"tool", "result"})

	provisioning := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patchpilot_environment_provisioning_total",
		Help: "Environment provisioning attempts by backend and result",
	}, []string{"backend", "result"})

	gitOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patchpilot_git_operations_total",
		Help: "Git publication operations by step and result",
	}, []string{"step", "result"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "patchpilot_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patchpilot_transport_errors_total",
		Help: "Transport-level errors by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(sessions, durations, turns, toolCalls, provisioning, gitOps, active, trErrors)

	return &Metrics{
		registry:        reg,
		Sessions:        sessions,
		SessionDuration: durations,
		Turns:           turns,
		ToolCalls:       toolCalls,
		Provisioning:    provisioning,
		GitOps:          gitOps,
		ActiveSessions:  active,
		TransportErrs:   trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSession records outcome, duration, and turn count for one session.
func (m *Metrics) RecordSession(outcome string, duration time.Duration, turns int) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Sessions.WithLabelValues(outcome).Inc()
	m.SessionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.Turns.WithLabelValues(outcome).Observe(float64(turns))
}

// RecordToolCall counts one tool invocation.
func (m *Metrics) RecordToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, result).Inc()
}

// RecordProvisioning counts one environment provisioning attempt.
func (m *Metrics) RecordProvisioning(backend, result string) {
	if m == nil {
		return
	}
	m.Provisioning.WithLabelValues(backend, result).Inc()
}

// RecordGitOp counts one git publication step.
func (m *Metrics) RecordGitOp(step, result string) {
	if m == nil {
		return
	}
	m.GitOps.WithLabelValues(step, result).Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
