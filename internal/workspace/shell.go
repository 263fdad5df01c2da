package workspace

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ShellResult is the combined output and exit status of one command.
type ShellResult struct {
	Output   string
	ExitCode int
}

// Shell runs commands through the platform shell.
type Shell struct {
	// Timeout bounds each command. Zero means no limit; the dispatcher does
	// not impose timeouts of its own.
	Timeout time.Duration
	// MaxOutput truncates combined output. Zero means 50KB.
	MaxOutput int
	// Dir is used when Run is called with an empty working directory.
	Dir string
}

// Run executes command once. A non-zero exit is reported through
// ShellResult.ExitCode, not as an error; err is only set when the process
// could not be started or ctx ended it.
func (s Shell) Run(ctx context.Context, command, dir string) (ShellResult, error) {
	if strings.TrimSpace(command) == "" {
		return ShellResult{}, fmt.Errorf("shell: empty command")
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		// Prefer a POSIX shell when command syntax requires it (e.g. heredocs).
		if strings.Contains(command, "<<") {
			if _, err := exec.LookPath("bash"); err == nil {
				cmd = exec.CommandContext(ctx, "bash", "-lc", command)
			}
		}
		if cmd == nil {
			cmd = exec.CommandContext(ctx, "cmd", "/C", command)
		}
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	if dir == "" {
		dir = s.Dir
	}
	cmd.Dir = dir
	// Children that inherit the output pipes must not outlive a cancelled run.
	cmd.WaitDelay = time.Second

	out, err := cmd.CombinedOutput()
	limit := s.MaxOutput
	if limit <= 0 {
		limit = 50 * 1024
	}
	result := string(out)
	if len(result) > limit {
		result = result[:limit] + "\n... (truncated)"
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return ShellResult{Output: result, ExitCode: exitErr.ExitCode()}, nil
		}
		if ctx.Err() != nil {
			return ShellResult{Output: result, ExitCode: -1}, fmt.Errorf("shell: %w", ctx.Err())
		}
		return ShellResult{Output: result, ExitCode: -1}, fmt.Errorf("shell: %w", err)
	}
	return ShellResult{Output: result}, nil
}
