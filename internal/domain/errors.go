package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTabBusy rejects a submission while the tab is already thinking.
	ErrTabBusy = errors.New("tab is busy: wait for the current reply or stop it")
	// ErrNoSession is returned when a tab has no backend session bound.
	ErrNoSession = errors.New("no active session")
	// ErrTabNotFound is returned for an unknown tab id.
	ErrTabNotFound = errors.New("tab not found")
)

// UnknownCommandError is returned when a name resolves to nothing.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Name)
}

// EmptyExpansionError is returned when a template expands to nothing.
type EmptyExpansionError struct {
	Name string
}

func (e *EmptyExpansionError) Error() string {
	return fmt.Sprintf("command %s expanded to an empty string", e.Name)
}

// ShellExitError reports a non-zero exit of a shell command.
// ExitCode is -1 when the process could not be started.
type ShellExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ShellExitError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("shell: %s: could not run", e.Command)
	}
	return fmt.Sprintf("shell: %s: exit status %d", e.Command, e.ExitCode)
}

// PipelineStepError carries the index of the step that broke the chain.
type PipelineStepError struct {
	Pipeline string
	Index    int
	Step     string
	Err      error
}

func (e *PipelineStepError) Error() string {
	return fmt.Sprintf("pipeline %s: step %d (%s): %v", e.Pipeline, e.Index+1, e.Step, e.Err)
}

func (e *PipelineStepError) Unwrap() error { return e.Err }

// PipelineCycleError is returned when pipelines reference each other in a loop.
type PipelineCycleError struct {
	Path []string
}

func (e *PipelineCycleError) Error() string {
	return "pipeline cycle: " + strings.Join(e.Path, " -> ")
}

// BackendError wraps a failed call to the agent-execution service.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// StreamedError is an error turn pushed by the backend (empty author).
type StreamedError struct {
	SessionID string
	Content   string
}

func (e *StreamedError) Error() string {
	return "backend error: " + e.Content
}

// Exit codes of the one-line CLI surface.
const (
	ExitOK             = 0
	ExitUnknownCommand = 1
	ExitExpansion      = 2
	ExitExecution      = 3
)

// ExitCode maps a dispatch error to the CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var unknown *UnknownCommandError
	if errors.As(err, &unknown) {
		return ExitUnknownCommand
	}
	var empty *EmptyExpansionError
	var cycle *PipelineCycleError
	if errors.As(err, &empty) || errors.As(err, &cycle) {
		return ExitExpansion
	}
	return ExitExecution
}
