package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"converter/errs"
)

func TestRunToolSuccess(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")

	err := runTool(context.Background(), "faketool", "sh",
		[]string{"-c", "printf converted > " + out}, out)
	if err != nil {
		t.Fatalf("runTool failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if string(data) != "converted" {
		t.Fatalf("unexpected output %q", data)
	}
}

func TestRunToolNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")

	err := runTool(context.Background(), "faketool", "sh",
		[]string{"-c", "echo bad input >&2; exit 3"}, out)

	var toolErr *errs.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", toolErr.ExitCode)
	}
	if !strings.Contains(toolErr.Stderr, "bad input") {
		t.Errorf("expected stderr tail, got %q", toolErr.Stderr)
	}
}

func TestRunToolMissingOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")

	// Exit 0 but write nothing: the invocation must still be a failure.
	err := runTool(context.Background(), "faketool", "sh", []string{"-c", "true"}, out)

	var toolErr *errs.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
}

func TestRunToolTimeout(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := runTool(ctx, "faketool", "sh", []string{"-c", "sleep 10"}, out)
	elapsed := time.Since(start)

	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// The child must be killed promptly, not waited out.
	if elapsed > 5*time.Second {
		t.Fatalf("runTool took %v, child was not killed", elapsed)
	}
}

func TestRunToolCancellation(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := runTool(ctx, "faketool", "sh", []string{"-c", "sleep 10"}, out)
	if !errors.Is(err, errs.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestRunToolSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")

	err := runTool(context.Background(), "faketool", "/nonexistent/binary", nil, out)
	var toolErr *errs.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
}

func TestOutputPathFor(t *testing.T) {
	got := outputPathFor("/work/inputs/abc.png", "webp")
	if got != "/work/inputs/abc.converted.webp" {
		t.Fatalf("unexpected output path %q", got)
	}
}
