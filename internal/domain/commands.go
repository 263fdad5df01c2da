package domain

import (
	"fmt"
	"strings"
)

// CommandKind selects how a user-defined command is dispatched.
type CommandKind string

const (
	CommandPrompt   CommandKind = "prompt"
	CommandShell    CommandKind = "shell"
	CommandTask     CommandKind = "task"
	CommandAction   CommandKind = "action"
	CommandPipeline CommandKind = "pipeline"
)

// CommandKinds lists every dispatchable kind in display order.
var CommandKinds = []CommandKind{CommandPrompt, CommandShell, CommandTask, CommandAction, CommandPipeline}

// Valid reports whether k is a known command kind.
func (k CommandKind) Valid() bool {
	for _, c := range CommandKinds {
		if c == k {
			return true
		}
	}
	return false
}

// ActionConfig carries the per-invocation overrides of an action command.
type ActionConfig struct {
	Backend       string `json:"backend,omitempty" yaml:"backend,omitempty"`
	Model         string `json:"model,omitempty" yaml:"model,omitempty"`
	Persona       string `json:"persona,omitempty" yaml:"persona,omitempty"`
	ThinkingLevel string `json:"thinking_level,omitempty" yaml:"thinking_level,omitempty"`
	WebSearch     bool   `json:"web_search,omitempty" yaml:"web_search,omitempty"`
	// TranscriptWindow bounds {{transcript_recent}}; 0 means the default.
	TranscriptWindow int `json:"transcript_window,omitempty" yaml:"transcript_window,omitempty"`
}

// PipelineStep references another command by name.
type PipelineStep struct {
	CommandName string `json:"command_name" yaml:"command"`
	Args        string `json:"args,omitempty" yaml:"args,omitempty"`
}

// PipelineConfig is the ordered step list of a pipeline command.
type PipelineConfig struct {
	Steps       []PipelineStep `json:"steps" yaml:"steps"`
	FailOnError bool           `json:"fail_on_error" yaml:"fail_on_error"`
	ChainOutput bool           `json:"chain_output" yaml:"chain_output"`
}

// CommandDefinition is a user-defined command. Name is its only identity.
type CommandDefinition struct {
	Name                  string          `json:"name" yaml:"name"`
	Icon                  string          `json:"icon,omitempty" yaml:"icon,omitempty"`
	Description           string          `json:"description,omitempty" yaml:"description,omitempty"`
	Kind                  CommandKind     `json:"kind" yaml:"kind"`
	Content               string          `json:"content,omitempty" yaml:"content,omitempty"`
	WorkingDir            string          `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
	ArgsDescription       string          `json:"args_description,omitempty" yaml:"args_description,omitempty"`
	Action                *ActionConfig   `json:"action,omitempty" yaml:"action,omitempty"`
	Pipeline              *PipelineConfig `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	IncludeInSystemPrompt bool            `json:"include_in_system_prompt,omitempty" yaml:"include_in_system_prompt,omitempty"`
	IsFavorite            bool            `json:"is_favorite,omitempty" yaml:"is_favorite,omitempty"`
	SortOrder             int             `json:"sort_order,omitempty" yaml:"sort_order,omitempty"`
}

// Validate checks that the definition is dispatchable on its own.
// Cross-definition checks (cycles, unknown step targets) live in the registry.
func (d CommandDefinition) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if name != d.Name || strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("command %q: name must not contain whitespace", d.Name)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("command %q: unknown kind %q", d.Name, d.Kind)
	}
	switch d.Kind {
	case CommandPipeline:
		if d.Pipeline == nil || len(d.Pipeline.Steps) == 0 {
			return fmt.Errorf("command %q: pipeline needs at least one step", d.Name)
		}
		for i, s := range d.Pipeline.Steps {
			if strings.TrimSpace(s.CommandName) == "" {
				return fmt.Errorf("command %q: step %d has no command", d.Name, i)
			}
			if s.CommandName == d.Name {
				return &PipelineCycleError{Path: []string{d.Name, d.Name}}
			}
		}
	case CommandPrompt, CommandShell, CommandAction:
		if strings.TrimSpace(d.Content) == "" {
			return fmt.Errorf("command %q: %s command needs content", d.Name, d.Kind)
		}
	}
	if d.Action != nil && d.Kind != CommandAction {
		return fmt.Errorf("command %q: action config on %s command", d.Name, d.Kind)
	}
	if d.Pipeline != nil && d.Kind != CommandPipeline {
		return fmt.Errorf("command %q: pipeline config on %s command", d.Name, d.Kind)
	}
	return nil
}

// Directive describes a built-in command. Names are reserved.
type Directive struct {
	Name        string
	Args        string
	Description string
	Group       string // display group for /help
}

// Directives is the single source of truth for built-in commands.
var Directives = []Directive{
	// Session
	{Name: "new", Description: "open a new session in a new tab", Group: "session"},
	{Name: "close", Description: "close the current tab", Group: "session"},
	{Name: "sessions", Description: "list open tabs and their sessions", Group: "session"},
	{Name: "switch", Args: "<session-id>", Description: "rehydrate this tab from another session", Group: "session"},
	// Dialogue
	{Name: "autochat", Args: "[n] [text]", Description: "start an automatic multi-agent run", Group: "dialogue"},
	{Name: "stop", Description: "stop the running autochat", Group: "dialogue"},
	{Name: "reopen", Args: "<message-id>", Description: "toggle a closed user message", Group: "dialogue"},
	{Name: "attach", Args: "<path>", Description: "attach a file to the next message", Group: "dialogue"},
	{Name: "detach", Args: "[path]", Description: "remove one or all attachments", Group: "dialogue"},
	// General
	{Name: "commands", Description: "list user-defined commands", Group: "general"},
	{Name: "config", Args: "[show|set <key> <value>|reset]", Description: "view or change preferences", Group: "general"},
	{Name: "help", Description: "show this help", Group: "general"},
}

// DirectiveGroups defines the display order and labels for help groups.
var DirectiveGroups = []struct {
	Key   string
	Label string
}{
	{"session", "Sessions"},
	{"dialogue", "Dialogue"},
	{"general", "General"},
}

// LookupDirective returns the built-in directive with the given name.
func LookupDirective(name string) (Directive, bool) {
	for _, d := range Directives {
		if d.Name == name {
			return d, true
		}
	}
	return Directive{}, false
}

// IsDirective reports whether name is a reserved built-in directive.
func IsDirective(name string) bool {
	_, ok := LookupDirective(name)
	return ok
}
