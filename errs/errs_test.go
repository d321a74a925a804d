package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrTimeout, "timeout"},
		{fmt.Errorf("ffmpeg: %w", ErrTimeout), "timeout"},
		{ErrCancelled, "cancelled"},
		{ErrUnsupportedFormat, "unsupported_format"},
		{ErrOverloaded, "overloaded"},
		{ErrNotFound, "not_found"},
		{ErrValidation, "validation"},
		{ErrInvalidPayload, "invalid_payload"},
		{&ToolError{Tool: "cwebp", ExitCode: 1}, "tool"},
		{fmt.Errorf("wrapped: %w", &ToolError{Tool: "cwebp"}), "tool"},
		{&MissingDependencyError{Binaries: []string{"ffmpeg"}}, "missing_dependency"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestToolErrorMessage(t *testing.T) {
	err := &ToolError{Tool: "ffmpeg", ExitCode: 1, Stderr: "unknown codec"}
	if got := err.Error(); got != "ffmpeg failed (exit 1): unknown codec" {
		t.Errorf("unexpected message %q", got)
	}

	spawn := &ToolError{Tool: "convert", Err: errors.New("fork failed")}
	if got := spawn.Error(); got != "convert failed: fork failed" {
		t.Errorf("unexpected message %q", got)
	}
}
