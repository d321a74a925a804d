package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the service. Handlers map these to HTTP
// status codes; the worker records them on failed jobs.
var (
	ErrValidation        = errors.New("invalid request")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrTimeout           = errors.New("conversion timed out")
	ErrOverloaded        = errors.New("queue depth exceeded")
	ErrNotFound          = errors.New("job not found")
	ErrCancelled         = errors.New("job cancelled")
	ErrInvalidPayload    = errors.New("payload exceeds code capacity")
)

// ToolError reports a failed external tool invocation: a non-zero exit,
// a spawn failure, or output the tool claimed to write but didn't.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Tool, e.ExitCode, e.Stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed (exit %d)", e.Tool, e.ExitCode)
}

func (e *ToolError) Unwrap() error { return e.Err }

// MissingDependencyError is fatal at startup: one or more required
// external binaries are not on PATH.
type MissingDependencyError struct {
	Binaries []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("required binaries not found: %v", e.Binaries)
}

// Kind returns the stable machine-readable name for an error, recorded on
// failed jobs and returned in API error bodies.
func Kind(err error) string {
	var tool *ToolError
	var dep *MissingDependencyError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrOverloaded):
		return "overloaded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.As(err, &tool):
		return "tool"
	case errors.As(err, &dep):
		return "missing_dependency"
	default:
		return "internal"
	}
}
