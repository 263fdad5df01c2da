package workspace

import (
	"context"
	"os/exec"
	"strings"
)

// maxGitOutput caps the status summary placed into templates.
const maxGitOutput = 8 * 1024

// GitBranch returns the current branch of the repository at dir, the short
// commit hash on a detached HEAD, or "" when dir is not a git checkout or
// git is unavailable.
func GitBranch(ctx context.Context, dir string) string {
	if out, err := git(ctx, dir, "symbolic-ref", "--short", "HEAD"); err == nil {
		return out
	}
	out, err := git(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// GitStatus returns the short-format status of the repository at dir.
// A clean tree reports "clean"; a non-repository reports "".
func GitStatus(ctx context.Context, dir string) string {
	s, err := git(ctx, dir, "status", "-s")
	if err != nil {
		return ""
	}
	if s == "" {
		return "clean"
	}
	if len(s) > maxGitOutput {
		s = s[:maxGitOutput] + "\n... (truncated)"
	}
	return s
}
