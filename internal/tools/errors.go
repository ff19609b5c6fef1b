package tools

import "fmt"

// InputError marks an invocation whose arguments failed schema
// validation. The invocation was rejected before touching the workspace.
type InputError struct {
	Tool   string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("tool %s: invalid input: %s", e.Tool, e.Reason)
}

// ExecutionError marks an invocation that passed validation but failed
// against the execution environment.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: execution failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
