package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// ErrEnvironmentClosed is returned by any operation against a terminated
// environment. Operations never silently no-op after termination.
var ErrEnvironmentClosed = errors.New("environment closed")

// ProvisioningError means the backing infrastructure could not allocate an
// environment. Fatal to the request; backend fallback happens only at
// process-configuration time.
type ProvisioningError struct {
	Backend string
	Err     error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision %s environment: %v", e.Backend, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// CloneError carries the captured stderr of a failed repository clone.
type CloneError struct {
	RepoURL  string
	Stderr   string
	ExitCode int
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s failed (exit %d): %s", e.RepoURL, e.ExitCode, e.Stderr)
}

// ReadError is a typed miss for file reads; a missing file is data, not a
// control-flow exception.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// TimeoutError signals that an operation exceeded the environment lease.
type TimeoutError struct {
	Op    string
	Lease time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded environment lease of %s", e.Op, e.Lease)
}
