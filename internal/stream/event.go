package stream

// Kind identifies the type of a progress event.
type Kind string

const (
	KindStatus            Kind = "status"
	KindSandbox           Kind = "sandbox"
	KindAnalysis          Kind = "analysis"
	KindAIAnalysis        Kind = "ai_analysis"
	KindAIToolResult      Kind = "ai_tool_result"
	KindGit               Kind = "git"
	KindFileWrite         Kind = "file_write"
	KindFileWriteComplete Kind = "file_write_complete"
	KindCommand           Kind = "command"
	KindCommandOutput     Kind = "command_output"
	KindCommandError      Kind = "command_error"
	KindCompletedChange   Kind = "completed_change"
	KindCompletion        Kind = "completion"
	KindError             Kind = "error"
	KindInfo              Kind = "info"
)

// Event is one unit of the outward streaming protocol. Consumers read the
// stream as an append-only, ordered event log terminated by a completion or
// error record.
type Event struct {
	Type      Kind           `json:"type"`
	Message   string         `json:"message,omitempty"`
	Command   string         `json:"command,omitempty"`
	Output    string         `json:"output,omitempty"`
	ErrorText string         `json:"error,omitempty"`
	File      string         `json:"file,omitempty"`
	Workspace string         `json:"workspace,omitempty"`
	ExitCode  *int           `json:"exit_code,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Telemetry map[string]any `json:"telemetry,omitempty"`
	// Fatal marks an error event as request-ending. Error events from
	// recovered tool failures leave it unset and the stream continues.
	Fatal bool `json:"fatal,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == KindCompletion || (e.Type == KindError && e.Fatal)
}

// Status builds a status event with an optional telemetry attribute map.
func Status(message string, telemetry map[string]any) Event {
	return Event{Type: KindStatus, Message: message, Telemetry: telemetry}
}

// Sandbox builds a sandbox lifecycle event.
func Sandbox(message string) Event {
	return Event{Type: KindSandbox, Message: message}
}

// Git builds a git progress event carrying the command about to run.
func Git(message, command string) Event {
	return Event{Type: KindGit, Message: message, Command: command}
}

// Info builds an informational event.
func Info(message string) Event {
	return Event{Type: KindInfo, Message: message}
}

// Error builds a terminal error event.
func Error(message string) Event {
	return Event{Type: KindError, Message: message, Fatal: true}
}

// SoftError builds a recoverable error record; the stream continues after it.
func SoftError(message string) Event {
	return Event{Type: KindError, Message: message}
}

// Completion builds the terminal success event.
func Completion(message string, telemetry map[string]any) Event {
	return Event{Type: KindCompletion, Message: message, Telemetry: telemetry}
}
