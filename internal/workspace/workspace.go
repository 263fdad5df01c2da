// Package workspace gathers the runtime context commands are expanded
// against and runs shell commands inside the workspace.
package workspace

import (
	"context"
	"path/filepath"

	"github.com/batalabs/convo/internal/command"
)

// DefaultMaxFiles bounds the {{files}} listing.
const DefaultMaxFiles = 200

// Workspace is the project directory the user is working in.
type Workspace struct {
	Root     string
	MaxFiles int
}

// New returns a workspace rooted at root.
func New(root string) *Workspace {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &Workspace{Root: abs, MaxFiles: DefaultMaxFiles}
}

// Name is the display name of the workspace (its directory name).
func (w *Workspace) Name() string {
	return filepath.Base(w.Root)
}

// Context collects workspace facts into an expansion context. Failures to
// list files or read git state degrade to empty values.
func (w *Workspace) Context(ctx context.Context, args string) command.Context {
	files, truncated, err := ListFiles(w.Root, w.MaxFiles)
	if err != nil {
		files = nil
	}
	if truncated {
		files = append(files, "... (truncated)")
	}
	return command.Context{
		WorkspaceName: w.Name(),
		WorkspacePath: w.Root,
		Files:         files,
		GitBranch:     GitBranch(ctx, w.Root),
		GitStatus:     GitStatus(ctx, w.Root),
		Args:          args,
	}
}
