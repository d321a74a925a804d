package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"converter/errs"
)

const stderrTailBytes = 2048

// outputPathFor allocates the output location for a conversion: the input
// path with a ".converted.<format>" suffix, in the same directory.
func outputPathFor(inputPath, format string) string {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return base + ".converted." + format
}

// runTool spawns one external process and waits for it. All exit paths
// reap the child: success, non-zero exit, timeout and cancellation (the
// CommandContext kill plus WaitDelay cover the last two). The output file
// must exist and be non-empty afterwards or the invocation is treated as
// failed.
func runTool(ctx context.Context, tool, bin string, args []string, outputPath string) error {
	if _, err := os.Stat(filepath.Dir(outputPath)); err != nil {
		return &errs.ToolError{Tool: tool, Err: fmt.Errorf("output directory: %w", err)}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()

	if ctxErr := ctx.Err(); ctxErr != nil {
		os.Remove(outputPath)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", tool, errs.ErrTimeout)
		}
		return fmt.Errorf("%s: %w", tool, errs.ErrCancelled)
	}

	if err != nil {
		os.Remove(outputPath)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &errs.ToolError{
				Tool:     tool,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderrTail(stderr.Bytes()),
			}
		}
		return &errs.ToolError{Tool: tool, Err: err}
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return &errs.ToolError{
			Tool:   tool,
			Stderr: stderrTail(stderr.Bytes()),
			Err:    fmt.Errorf("tool exited 0 but produced no output"),
		}
	}

	return nil
}

func stderrTail(b []byte) string {
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return strings.TrimSpace(string(b))
}
