package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageKind classifies a conversation turn.
type MessageKind string

const (
	KindUser         MessageKind = "user"
	KindAI           MessageKind = "ai"
	KindSystem       MessageKind = "system"
	KindError        MessageKind = "error"
	KindCommand      MessageKind = "command"
	KindTask         MessageKind = "task"
	KindShellOutput  MessageKind = "shell_output"
	KindActionResult MessageKind = "action_result"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindUser, KindAI, KindSystem, KindError, KindCommand, KindTask, KindShellOutput, KindActionResult:
		return true
	}
	return false
}

// Message is one conversation turn in a tab's transcript.
//
// Messages are append-only. Closed is a presentation toggle for user turns
// and is the only field that changes after creation.
type Message struct {
	ID          string      `json:"id"`
	Kind        MessageKind `json:"kind"`
	Author      string      `json:"author"`
	Text        string      `json:"text"`
	Timestamp   time.Time   `json:"timestamp"`
	Attachments []string    `json:"attachments,omitempty"`
	Backend     string      `json:"backend,omitempty"`
	ModelName   string      `json:"model_name,omitempty"`
	Closed      bool        `json:"closed,omitempty"`
}

// NewMessage builds a message with a fresh ID and the current time.
func NewMessage(kind MessageKind, author, text string) Message {
	return Message{
		ID:        NewUUID(),
		Kind:      kind,
		Author:    author,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// ErrorMessage builds an error-kind turn authored by the system.
func ErrorMessage(text string) Message {
	return NewMessage(KindError, "system", text)
}

// SystemMessage builds a system-kind turn.
func SystemMessage(text string) Message {
	return NewMessage(KindSystem, "system", text)
}

// Session holds metadata about a backend conversation session.
type Session struct {
	ID          string `json:"id"`
	ProjectPath string `json:"project_path"`
	Title       string `json:"title"`
	// Mode is the backend-declared session mode, e.g. "awaiting_confirmation".
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModeAwaitingConfirmation is the session mode the backend reports while it
// waits for the user to confirm an action.
const ModeAwaitingConfirmation = "awaiting_confirmation"

// Awaiting reports whether the backend declared the session as waiting for
// confirmation.
func (s Session) Awaiting() bool {
	return s.Mode == ModeAwaitingConfirmation
}

// SessionWithHistory is a session plus its persisted transcript.
type SessionWithHistory struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}

// AppMode is the observable state of a tab. It is derived, never stored.
type AppMode int

const (
	ModeIdle AppMode = iota
	ModeAwaiting
	ModeThinking
)

func (m AppMode) String() string {
	switch m {
	case ModeAwaiting:
		return "awaiting"
	case ModeThinking:
		return "thinking"
	default:
		return "idle"
	}
}

// StopCondition selects what ends an AutoChat run.
type StopCondition string

const (
	StopIterationCount StopCondition = "iteration_count"
	StopUserInterrupt  StopCondition = "user_interrupt"
)

// AutoChatConfig bounds an automatic multi-turn dialogue run.
type AutoChatConfig struct {
	MaxIterations    int           `json:"max_iterations"`
	StopCondition    StopCondition `json:"stop_condition"`
	WebSearchEnabled bool          `json:"web_search_enabled"`
}

// Validate checks the iteration cap and the stop condition.
func (c AutoChatConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("autochat: max iterations must be at least 1, got %d", c.MaxIterations)
	}
	switch c.StopCondition {
	case StopIterationCount, StopUserInterrupt:
		return nil
	default:
		return fmt.Errorf("autochat: unknown stop condition %q", c.StopCondition)
	}
}

// ParseStopCondition normalizes a user-supplied stop condition name.
func ParseStopCondition(s string) (StopCondition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StopIterationCount), "iterations":
		return StopIterationCount, nil
	case string(StopUserInterrupt), "interrupt", "manual":
		return StopUserInterrupt, nil
	}
	return "", fmt.Errorf("unknown stop condition %q", s)
}

// StepResult is the outcome of one pipeline step.
type StepResult struct {
	Index       int    `json:"index"`
	CommandName string `json:"command_name"`
	Success     bool   `json:"success"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PipelineResult aggregates the step results of one pipeline run.
// FailedIndex is -1 when every step succeeded.
type PipelineResult struct {
	Success     bool         `json:"success"`
	Steps       []StepResult `json:"steps"`
	FinalOutput string       `json:"final_output,omitempty"`
	Error       string       `json:"error,omitempty"`
	FailedIndex int          `json:"failed_index"`
}
