package domain

import (
	"errors"
	"fmt"
	"regexp"
	"testing"
)

// ---------------------------------------------------------------------------
// uuid.go
// ---------------------------------------------------------------------------

func TestNewUUID(t *testing.T) {
	id := NewUUID()
	re := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !re.MatchString(id) {
		t.Errorf("UUID %q does not match v4 format", id)
	}
}

func TestNewUUID_unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewUUID()
		if seen[id] {
			t.Fatalf("duplicate UUID on iteration %d: %s", i, id)
		}
		seen[id] = true
	}
}

// ---------------------------------------------------------------------------
// commands.go
// ---------------------------------------------------------------------------

func TestDirectives_allHaveGroup(t *testing.T) {
	groups := map[string]bool{}
	for _, g := range DirectiveGroups {
		groups[g.Key] = true
	}
	for _, d := range Directives {
		if d.Name == "" {
			t.Error("directive with empty name")
		}
		if !groups[d.Group] {
			t.Errorf("directive %s has unknown group %q", d.Name, d.Group)
		}
	}
}

func TestIsDirective(t *testing.T) {
	for _, name := range []string{"help", "new", "autochat", "stop"} {
		if !IsDirective(name) {
			t.Errorf("IsDirective(%q) = false", name)
		}
	}
	for _, name := range []string{"", "task", "Help", "/help"} {
		if IsDirective(name) {
			t.Errorf("IsDirective(%q) = true", name)
		}
	}
}

func TestCommandDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     CommandDefinition
		wantErr bool
	}{
		{"prompt ok", CommandDefinition{Name: "sum", Kind: CommandPrompt, Content: "summarize"}, false},
		{"empty name", CommandDefinition{Kind: CommandPrompt, Content: "x"}, true},
		{"name with space", CommandDefinition{Name: "a b", Kind: CommandPrompt, Content: "x"}, true},
		{"unknown kind", CommandDefinition{Name: "x", Kind: "macro", Content: "x"}, true},
		{"shell without content", CommandDefinition{Name: "x", Kind: CommandShell}, true},
		{"task without content", CommandDefinition{Name: "x", Kind: CommandTask}, false},
		{"pipeline without steps", CommandDefinition{Name: "p", Kind: CommandPipeline, Pipeline: &PipelineConfig{}}, true},
		{"pipeline self reference", CommandDefinition{Name: "p", Kind: CommandPipeline, Pipeline: &PipelineConfig{
			Steps: []PipelineStep{{CommandName: "a"}, {CommandName: "p"}},
		}}, true},
		{"action config on prompt", CommandDefinition{Name: "x", Kind: CommandPrompt, Content: "x", Action: &ActionConfig{}}, true},
		{"pipeline ok", CommandDefinition{Name: "p", Kind: CommandPipeline, Pipeline: &PipelineConfig{
			Steps: []PipelineStep{{CommandName: "a"}},
		}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCommandDefinition_Validate_selfCycleIsTyped(t *testing.T) {
	def := CommandDefinition{Name: "p", Kind: CommandPipeline, Pipeline: &PipelineConfig{
		Steps: []PipelineStep{{CommandName: "p"}},
	}}
	var cycle *PipelineCycleError
	if !errors.As(def.Validate(), &cycle) {
		t.Fatal("expected PipelineCycleError")
	}
}

// ---------------------------------------------------------------------------
// types.go
// ---------------------------------------------------------------------------

func TestAutoChatConfig_Validate(t *testing.T) {
	tests := []struct {
		cfg     AutoChatConfig
		wantErr bool
	}{
		{AutoChatConfig{MaxIterations: 1, StopCondition: StopIterationCount}, false},
		{AutoChatConfig{MaxIterations: 10, StopCondition: StopUserInterrupt}, false},
		{AutoChatConfig{MaxIterations: 0, StopCondition: StopIterationCount}, true},
		{AutoChatConfig{MaxIterations: 3, StopCondition: "forever"}, true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}

func TestParseStopCondition(t *testing.T) {
	got, err := ParseStopCondition(" Interrupt ")
	if err != nil || got != StopUserInterrupt {
		t.Errorf("ParseStopCondition = %q, %v", got, err)
	}
	got, err = ParseStopCondition("")
	if err != nil || got != StopIterationCount {
		t.Errorf("ParseStopCondition(\"\") = %q, %v", got, err)
	}
	if _, err := ParseStopCondition("never"); err == nil {
		t.Error("expected error for unknown condition")
	}
}

func TestAppMode_String(t *testing.T) {
	if ModeIdle.String() != "idle" || ModeAwaiting.String() != "awaiting" || ModeThinking.String() != "thinking" {
		t.Error("unexpected AppMode strings")
	}
}

func TestSession_Awaiting(t *testing.T) {
	if (Session{}).Awaiting() {
		t.Error("zero session should not be awaiting")
	}
	if !(Session{Mode: ModeAwaitingConfirmation}).Awaiting() {
		t.Error("expected awaiting")
	}
}

// ---------------------------------------------------------------------------
// events.go
// ---------------------------------------------------------------------------

func TestDialogueTurn_Message(t *testing.T) {
	m := DialogueTurn{SessionID: "s1", Author: "Ayaka", Content: "hi", Model: "m1"}.Message()
	if m.Kind != KindAI || m.Author != "Ayaka" || m.Text != "hi" || m.ModelName != "m1" {
		t.Errorf("unexpected message %+v", m)
	}

	e := DialogueTurn{SessionID: "s1", Content: "boom"}.Message()
	if e.Kind != KindError {
		t.Errorf("empty author Kind = %q, want error", e.Kind)
	}
	if e.Text != "boom" {
		t.Errorf("Text = %q", e.Text)
	}
}

// ---------------------------------------------------------------------------
// errors.go
// ---------------------------------------------------------------------------

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&UnknownCommandError{Name: "x"}, ExitUnknownCommand},
		{fmt.Errorf("wrap: %w", &UnknownCommandError{Name: "x"}), ExitUnknownCommand},
		{&EmptyExpansionError{Name: "x"}, ExitExpansion},
		{&PipelineCycleError{Path: []string{"a", "b", "a"}}, ExitExpansion},
		{&ShellExitError{Command: "false", ExitCode: 1}, ExitExecution},
		{&BackendError{Op: "dispatch", Err: errors.New("down")}, ExitExecution},
		{&PipelineStepError{Index: 1, Err: &ShellExitError{ExitCode: 2}}, ExitExecution},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPipelineStepError_unwrap(t *testing.T) {
	inner := &ShellExitError{Command: "make", ExitCode: 2}
	err := &PipelineStepError{Pipeline: "ci", Index: 1, Step: "build", Err: inner}
	var shell *ShellExitError
	if !errors.As(err, &shell) || shell.ExitCode != 2 {
		t.Fatal("expected to unwrap ShellExitError")
	}
	if got := err.Error(); got != "pipeline ci: step 2 (build): shell: make: exit status 2" {
		t.Errorf("Error() = %q", got)
	}
}
