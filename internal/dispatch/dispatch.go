// Package dispatch executes resolved user-defined commands by kind.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/command"
	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/tab"
	"github.com/batalabs/convo/internal/workspace"
)

// Submitter is the single dialogue entry point shared by typed plain text
// and prompt commands. SubmitDialogue owns the tab's thinking state for the
// call; SubmitHeld runs under a hold the caller already owns. Both append
// their own error turns and return the turns the backend replied with.
type Submitter interface {
	SubmitDialogue(ctx context.Context, t *tab.Tab, text string, files []string) ([]domain.Message, error)
	SubmitHeld(ctx context.Context, t *tab.Tab, text string, files []string) ([]domain.Message, error)
}

// ShellRunner runs one shell command.
type ShellRunner interface {
	Run(ctx context.Context, command, dir string) (workspace.ShellResult, error)
}

// TaskRunner hands a task description to the task-orchestration service.
type TaskRunner interface {
	StartTask(ctx context.Context, sessionID, description string) error
}

// ActionRequest is one AI invocation with per-command overrides.
type ActionRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	Command       string `json:"command"`
	Prompt        string `json:"prompt"`
	Persona       string `json:"persona,omitempty"`
	Backend       string `json:"backend,omitempty"`
	Model         string `json:"model,omitempty"`
	ThinkingLevel string `json:"thinking_level,omitempty"`
	WebSearch     bool   `json:"web_search,omitempty"`
}

// ActionReply is the result of an action invocation.
type ActionReply struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	Backend string `json:"backend,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ActionRunner invokes the AI-execution service once.
type ActionRunner interface {
	RunAction(ctx context.Context, req ActionRequest) (ActionReply, error)
}

// Request is one command invocation against a tab.
type Request struct {
	Tab     *tab.Tab
	Command domain.CommandDefinition
	// Args is the raw argument tail, substituted for {{args}}.
	Args string
	// Context carries workspace data. Args and Transcript are filled in
	// by the dispatcher.
	Context command.Context
	// Snapshot resolves pipeline steps. Nil means the registry's current one.
	Snapshot *command.Snapshot
}

// Result describes what a dispatch did.
type Result struct {
	Kind domain.CommandKind
	// Content is the expanded template that was executed or sent.
	Content string
	// Output is what a following pipeline step receives when chaining.
	Output   string
	Pipeline *domain.PipelineResult
}

// Dispatcher routes a command to the collaborator for its kind.
type Dispatcher struct {
	registry *command.Registry
	submit   Submitter
	shell    ShellRunner
	tasks    TaskRunner
	actions  ActionRunner
	log      *zap.Logger
}

// Config holds the collaborators of a Dispatcher.
type Config struct {
	Registry *command.Registry
	Submit   Submitter
	Shell    ShellRunner
	Tasks    TaskRunner
	Actions  ActionRunner
	Logger   *zap.Logger
}

// New returns a dispatcher. A nil logger disables logging.
func New(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		submit:   cfg.Submit,
		shell:    cfg.Shell,
		tasks:    cfg.Tasks,
		actions:  cfg.Actions,
		log:      log,
	}
}

// Dispatch executes req. Every failure has already been recorded on the tab
// as an error turn when Dispatch returns the error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if req.Snapshot == nil && d.registry != nil {
		req.Snapshot = d.registry.Snapshot()
	}
	return d.dispatch(ctx, req, nil)
}

// Preview expands the command without executing it.
func (d *Dispatcher) Preview(req Request) (command.Expanded, error) {
	return command.ExpandCommand(req.Command, d.expansionContext(req))
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request, stack []string) (Result, error) {
	def := req.Command
	log := d.log.With(zap.String("command", def.Name), zap.String("kind", string(def.Kind)))
	res := Result{Kind: def.Kind}
	nested := len(stack) > 0

	if def.Kind == domain.CommandPipeline {
		return d.runPipeline(ctx, req, stack)
	}

	exp, err := command.ExpandCommand(def, d.expansionContext(req))
	res.Content = exp.Content
	if err != nil {
		log.Debug("expansion failed", zap.Error(err))
		return res, d.fail(req.Tab, err)
	}

	switch def.Kind {
	case domain.CommandPrompt:
		if d.submit == nil {
			return res, d.fail(req.Tab, &domain.BackendError{Op: "dialogue", Err: errors.New("not configured")})
		}
		// The submitter records its own failures on the tab.
		submit := d.submit.SubmitDialogue
		if nested {
			submit = d.submit.SubmitHeld
		}
		turns, err := submit(ctx, req.Tab, exp.Content, nil)
		res.Output = lastReply(turns)
		return res, err

	case domain.CommandShell:
		return d.runShell(ctx, req.Tab, def, exp, res, nested, log)

	case domain.CommandTask:
		hold, err := acquire(req.Tab, "", nested)
		if err != nil {
			return res, err
		}
		defer hold.Release()
		req.Tab.Append(domain.NewMessage(domain.KindTask, def.Name, exp.Content))
		if d.tasks == nil {
			return res, d.fail(req.Tab, &domain.BackendError{Op: "task", Err: errors.New("not configured")})
		}
		if err := d.tasks.StartTask(ctx, req.Tab.SessionID(), exp.Content); err != nil {
			log.Warn("start task failed", zap.Error(err))
			return res, d.fail(req.Tab, &domain.BackendError{Op: "task", Err: err})
		}
		res.Output = exp.Content
		return res, nil

	case domain.CommandAction:
		return d.runAction(ctx, req.Tab, def, exp, res, nested, log)
	}
	return res, d.fail(req.Tab, fmt.Errorf("command %s: unknown kind %q", def.Name, def.Kind))
}

// acquire enters Thinking for a top-level dispatch. Pipeline steps run
// under the pipeline's hold and get the zero Hold.
func acquire(t *tab.Tab, persona string, nested bool) (tab.Hold, error) {
	if nested {
		return tab.Hold{}, nil
	}
	return t.Acquire(persona)
}

func (d *Dispatcher) runShell(ctx context.Context, t *tab.Tab, def domain.CommandDefinition, exp command.Expanded, res Result, nested bool, log *zap.Logger) (Result, error) {
	if d.shell == nil {
		return res, d.fail(t, &domain.BackendError{Op: "shell", Err: errors.New("not configured")})
	}
	hold, err := acquire(t, "", nested)
	if err != nil {
		return res, err
	}
	defer hold.Release()

	out, err := d.shell.Run(ctx, exp.Content, exp.WorkingDir)
	res.Output = out.Output
	if strings.TrimSpace(out.Output) != "" {
		msg := domain.NewMessage(domain.KindShellOutput, def.Name, out.Output)
		t.Append(msg)
	}
	if err != nil || out.ExitCode != 0 {
		code := out.ExitCode
		if err != nil {
			code = -1
		}
		log.Info("shell command failed", zap.Int("exit_code", code), zap.Error(err))
		return res, d.fail(t, &domain.ShellExitError{Command: def.Name, ExitCode: code, Output: out.Output})
	}
	if strings.TrimSpace(out.Output) == "" {
		t.Append(domain.NewMessage(domain.KindShellOutput, def.Name, "(no output)"))
	}
	return res, nil
}

func (d *Dispatcher) runAction(ctx context.Context, t *tab.Tab, def domain.CommandDefinition, exp command.Expanded, res Result, nested bool, log *zap.Logger) (Result, error) {
	if d.actions == nil {
		return res, d.fail(t, &domain.BackendError{Op: "action", Err: errors.New("not configured")})
	}
	cfg := domain.ActionConfig{}
	if def.Action != nil {
		cfg = *def.Action
	}
	hold, err := acquire(t, cfg.Persona, nested)
	if err != nil {
		return res, err
	}
	defer hold.Release()

	reply, err := d.actions.RunAction(ctx, ActionRequest{
		SessionID:     t.SessionID(),
		Command:       def.Name,
		Prompt:        exp.Content,
		Persona:       cfg.Persona,
		Backend:       cfg.Backend,
		Model:         cfg.Model,
		ThinkingLevel: cfg.ThinkingLevel,
		WebSearch:     cfg.WebSearch,
	})
	if err != nil {
		log.Warn("action failed", zap.Error(err))
		return res, d.fail(t, &domain.BackendError{Op: "action", Err: err})
	}
	author := reply.Author
	if author == "" {
		author = def.Name
	}
	msg := domain.NewMessage(domain.KindActionResult, author, reply.Content)
	msg.Backend = firstNonEmpty(reply.Backend, cfg.Backend)
	msg.ModelName = firstNonEmpty(reply.Model, cfg.Model)
	t.Append(msg)
	res.Output = reply.Content
	return res, nil
}

func (d *Dispatcher) expansionContext(req Request) command.Context {
	c := req.Context
	c.Args = req.Args
	if req.Command.Kind == domain.CommandAction && req.Tab != nil {
		c.Transcript = req.Tab.Messages()
	}
	return c
}

// fail records err on the tab as an error turn and returns it.
func (d *Dispatcher) fail(t *tab.Tab, err error) error {
	if t != nil {
		t.Append(domain.ErrorMessage(err.Error()))
	}
	return err
}

func lastReply(turns []domain.Message) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Kind != domain.KindError {
			return turns[i].Text
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
