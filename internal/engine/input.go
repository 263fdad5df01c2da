package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/command"
	"github.com/batalabs/convo/internal/dispatch"
	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/input"
	"github.com/batalabs/convo/internal/tab"
)

// UserAuthor is the author recorded on turns the local user produced.
const UserAuthor = "you"

// Outcome describes what one line of input did.
type Outcome struct {
	Intent input.Intent
	// Dispatch is set for user-defined commands that reached the dispatcher.
	Dispatch *dispatch.Result
}

// Preview is the dry-run form of an Outcome: what a line would do.
type Preview struct {
	Intent  input.Intent
	Kind    domain.CommandKind
	Content string
	// Placeholders names the template variables the command uses.
	Placeholders []string
	// Steps lists the step names of a pipeline.
	Steps []string
}

// HandleInput parses raw and routes it: plain text to SubmitDialogue,
// directives to their handler and user-defined commands to the dispatcher.
// Plain text and commands are rejected with domain.ErrTabBusy while t is
// thinking; directives such as stop still run. Failures are recorded on
// the tab as error turns before they are returned.
func (e *Engine) HandleInput(ctx context.Context, t *tab.Tab, raw string) (Outcome, error) {
	if t == nil {
		var ok bool
		if t, ok = e.tabs.Active(); !ok {
			return Outcome{}, domain.ErrTabNotFound
		}
	}
	if strings.TrimSpace(raw) == "" {
		return Outcome{}, nil
	}

	intent := e.Parser().Parse(raw)
	out := Outcome{Intent: intent}
	before := t.Len()
	defer func() { e.persistSince(ctx, t, before) }()

	switch in := intent.(type) {
	case input.Directive:
		if err := e.runDirective(ctx, t, in); err != nil {
			if !errors.Is(err, domain.ErrTabBusy) {
				t.Append(domain.ErrorMessage(err.Error()))
			}
			return out, err
		}
		return out, nil

	case input.CustomCommand:
		if t.Thinking() {
			return out, domain.ErrTabBusy
		}
		res, err := e.runCommand(ctx, t, in, raw)
		out.Dispatch = res
		return out, err

	case input.PlainText:
		if t.Thinking() {
			return out, domain.ErrTabBusy
		}
		_, files := t.TakeSubmission()
		_, err := e.SubmitDialogue(ctx, t, in.Text, files)
		if errors.Is(err, domain.ErrTabBusy) {
			for _, f := range files {
				t.Attach(f)
			}
		}
		return out, err
	}
	return out, fmt.Errorf("unhandled intent %T", intent)
}

func (e *Engine) runCommand(ctx context.Context, t *tab.Tab, in input.CustomCommand, raw string) (*dispatch.Result, error) {
	snap := e.registry.Snapshot()
	res := command.Resolve(snap, in.Name)
	if !res.Found() || res.Kind != command.ResolvedCommand {
		// Resolved entirely client-side; the backend never hears of it.
		err := &domain.UnknownCommandError{Name: in.Name}
		t.Append(domain.ErrorMessage(err.Error()))
		return nil, err
	}

	t.Append(domain.NewMessage(domain.KindCommand, UserAuthor, strings.TrimSpace(raw)))
	r, err := e.dispatcher.Dispatch(ctx, dispatch.Request{
		Tab:      t,
		Command:  res.Command,
		Args:     in.RawArgs,
		Context:  e.expansionContext(ctx, in.RawArgs),
		Snapshot: snap,
	})
	if err != nil {
		e.log.Info("command failed",
			zap.String("command", in.Name),
			zap.String("kind", string(res.Command.Kind)),
			zap.Error(err))
		// Prompt commands go through SubmitDialogue, which alerts itself.
		if res.Command.Kind != domain.CommandPrompt && domain.ExitCode(err) == domain.ExitExecution &&
			!errors.Is(err, domain.ErrTabBusy) {
			e.alert(t.SessionID(), err.Error())
		}
	}
	return &r, err
}

// PreviewInput parses raw and, for a user-defined command, expands it
// without executing anything.
func (e *Engine) PreviewInput(ctx context.Context, raw string) (Preview, error) {
	intent := e.Parser().Parse(raw)
	p := Preview{Intent: intent}
	in, ok := intent.(input.CustomCommand)
	if !ok {
		return p, nil
	}
	def, found := e.ResolveCustomCommand(in.Name)
	if !found {
		return p, &domain.UnknownCommandError{Name: in.Name}
	}
	p.Kind = def.Kind
	p.Placeholders = command.Placeholders(def.Content)
	if def.Kind == domain.CommandPipeline && def.Pipeline != nil {
		for _, st := range def.Pipeline.Steps {
			p.Steps = append(p.Steps, st.CommandName)
		}
		return p, nil
	}
	var t *tab.Tab
	if active, ok := e.tabs.Active(); ok {
		t = active
	}
	exp, err := e.dispatcher.Preview(dispatch.Request{
		Tab:     t,
		Command: def,
		Args:    in.RawArgs,
		Context: e.expansionContext(ctx, in.RawArgs),
	})
	p.Content = exp.Content
	return p, err
}

// SubmitDialogue is the single dialogue entry point shared by typed plain
// text and prompt commands. It holds the tab's thinking state for the
// call, appends the user turn and the replies, and records failures as
// error turns.
func (e *Engine) SubmitDialogue(ctx context.Context, t *tab.Tab, text string, files []string) ([]domain.Message, error) {
	hold, err := t.Acquire("")
	if err != nil {
		return nil, err
	}
	defer hold.Release()
	return e.SubmitHeld(ctx, t, text, files)
}

// SubmitHeld is SubmitDialogue for a caller that already holds the tab's
// thinking state, such as a pipeline running a prompt step.
func (e *Engine) SubmitHeld(ctx context.Context, t *tab.Tab, text string, files []string) ([]domain.Message, error) {
	user := domain.NewMessage(domain.KindUser, UserAuthor, text)
	user.Attachments = files
	t.Append(user)

	sessionID := t.SessionID()
	fail := func(err error) ([]domain.Message, error) {
		t.Append(domain.ErrorMessage(err.Error()))
		e.alert(sessionID, err.Error())
		return nil, err
	}
	if e.backend == nil {
		return fail(&domain.BackendError{Op: "dialogue", Err: errors.New("not configured")})
	}
	if sessionID == "" {
		return fail(domain.ErrNoSession)
	}

	turns, err := e.backend.DispatchDialogue(ctx, sessionID, text, files)
	if err != nil {
		var streamed *domain.StreamedError
		var backend *domain.BackendError
		if !errors.As(err, &streamed) && !errors.As(err, &backend) {
			err = &domain.BackendError{Op: "dialogue", Err: err}
		}
		e.log.Warn("dialogue failed", zap.String("session", sessionID), zap.Error(err))
		return fail(err)
	}

	out := make([]domain.Message, 0, len(turns))
	var firstErr error
	for _, turn := range turns {
		m := turn.Message()
		t.Append(m)
		out = append(out, m)
		if turn.IsError() {
			e.alert(sessionID, turn.Content)
			if firstErr == nil {
				firstErr = &domain.StreamedError{SessionID: sessionID, Content: turn.Content}
			}
		}
	}
	return out, firstErr
}

// ResolveCustomCommand looks a user-defined command up by exact name.
// Built-in directives are not returned.
func (e *Engine) ResolveCustomCommand(name string) (domain.CommandDefinition, bool) {
	res := e.registry.Resolve(name)
	if res.Kind != command.ResolvedCommand {
		return domain.CommandDefinition{}, false
	}
	return res.Command, true
}

// ExpandTemplate expands template against the workspace and, when t is not
// nil, its transcript.
func (e *Engine) ExpandTemplate(ctx context.Context, t *tab.Tab, template, args string) string {
	c := e.expansionContext(ctx, args)
	if t != nil {
		c.IncludeTranscript = true
		c.Transcript = t.Messages()
	}
	return command.Expand(template, c)
}

func (e *Engine) expansionContext(ctx context.Context, args string) command.Context {
	c := e.workspace.Context(ctx, args)
	c.RecentWindow = e.Prefs().TranscriptRecent
	return c
}
