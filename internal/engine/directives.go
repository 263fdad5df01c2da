package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/config"
	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/input"
	"github.com/batalabs/convo/internal/tab"
)

func (e *Engine) runDirective(ctx context.Context, t *tab.Tab, d input.Directive) error {
	switch d.Name {
	case "help":
		t.Append(domain.SystemMessage(e.HelpText()))
	case "commands":
		t.Append(domain.SystemMessage(e.CommandsText()))
	case "config":
		return e.configDirective(t, d.Args)

	case "new":
		_, err := e.NewSession(ctx)
		return err
	case "close":
		return e.CloseTab(t.ID())
	case "sessions":
		t.Append(domain.SystemMessage(e.SessionsText(ctx)))
	case "switch":
		if len(d.Args) != 1 {
			return usage(d.Name)
		}
		_, err := e.SwitchSession(ctx, t, d.Args[0])
		return err

	case "autochat":
		return e.startAutoChat(ctx, t, d)
	case "stop":
		if !e.autochat.Stop(t) {
			t.Append(domain.SystemMessage("No AutoChat is running."))
		}
	case "reopen":
		if len(d.Args) != 1 {
			return usage(d.Name)
		}
		return e.ToggleClosed(ctx, t, d.Args[0])
	case "attach":
		if d.RawArgs == "" {
			return usage(d.Name)
		}
		return e.attach(t, d.RawArgs)
	case "detach":
		if !t.Detach(d.RawArgs) {
			t.Append(domain.SystemMessage("Nothing to detach."))
			return nil
		}
		t.Append(domain.SystemMessage(attachmentSummary(t.Attachments())))

	default:
		return &domain.UnknownCommandError{Name: d.Name}
	}
	return nil
}

func usage(name string) error {
	d, _ := domain.LookupDirective(name)
	return fmt.Errorf("usage: /%s %s", d.Name, d.Args)
}

// HelpText renders the built-in directives grouped for display, followed by
// a count of user-defined commands.
func (e *Engine) HelpText() string {
	prefix := e.Prefs().CommandPrefix
	var b strings.Builder
	for i, g := range domain.DirectiveGroups {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(g.Label + ":\n")
		for _, d := range domain.Directives {
			if d.Group != g.Key {
				continue
			}
			usage := prefix + d.Name
			if d.Args != "" {
				usage += " " + d.Args
			}
			fmt.Fprintf(&b, "  %-28s %s\n", usage, d.Description)
		}
	}
	if n := e.registry.Snapshot().Len(); n > 0 {
		fmt.Fprintf(&b, "\n%d user-defined commands. Use %scommands to list them.", n, prefix)
	}
	return strings.TrimRight(b.String(), "\n")
}

// CommandsText lists the user-defined commands in display order.
func (e *Engine) CommandsText() string {
	defs := e.registry.Snapshot().Commands()
	if len(defs) == 0 {
		return "No user-defined commands."
	}
	prefix := e.Prefs().CommandPrefix
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, d := range defs {
		mark := " "
		if d.IsFavorite {
			mark = "*"
		}
		name := prefix + d.Name
		if d.Icon != "" {
			name = d.Icon + " " + name
		}
		fmt.Fprintf(&b, " %s %-24s %-9s %s\n", mark, name, d.Kind, d.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SessionsText lists the open tabs and, with a store, the workspace's
// recent sessions with their message counts.
func (e *Engine) SessionsText(ctx context.Context) string {
	active, _ := e.tabs.Active()
	var b strings.Builder
	b.WriteString("Tabs:\n")
	for i, t := range e.tabs.Tabs() {
		mark := " "
		if active != nil && t.ID() == active.ID() {
			mark = "*"
		}
		label, title := "(no session)", ""
		if sid := t.SessionID(); sid != "" {
			label = shortID(sid)
			if e.store != nil {
				title = e.store.SessionTitle(ctx, sid)
			}
		}
		line := fmt.Sprintf(" %s %d  %-12s %-9s %d turns  %s", mark, i+1, label, t.Mode(), t.Len(), title)
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	if e.store == nil {
		return strings.TrimRight(b.String(), "\n")
	}

	recent, err := e.store.ListSessions(ctx, e.workspace.Root, 5)
	if err != nil {
		e.log.Warn("list sessions", zap.Error(err))
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent sessions:\n")
	}
	for _, sess := range recent {
		n, err := e.store.MessageCount(ctx, sess.ID)
		if err != nil {
			e.log.Debug("count messages", zap.String("session", sess.ID), zap.Error(err))
		}
		fmt.Fprintf(&b, "   %-12s %-24s %d messages\n", shortID(sess.ID), sess.Title, n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (e *Engine) configDirective(t *tab.Tab, args []string) error {
	p := e.Prefs()
	out, err := config.ExecuteConfigAction(&p, args)
	if err != nil {
		return err
	}
	e.setPrefs(p)
	t.Append(domain.SystemMessage(out))
	return nil
}

// startAutoChat handles "/autochat [n] [text]". A leading integer
// overrides the configured iteration cap. Attachments travel with the run.
func (e *Engine) startAutoChat(ctx context.Context, t *tab.Tab, d input.Directive) error {
	if e.backend == nil {
		return &domain.BackendError{Op: "autochat", Err: errors.New("not configured")}
	}
	cfg := e.Prefs().AutoChatConfig()
	text := d.RawArgs
	if len(d.Args) > 0 {
		if n, err := strconv.Atoi(d.Args[0]); err == nil {
			cfg.MaxIterations = n
			text = strings.TrimSpace(strings.TrimPrefix(text, d.Args[0]))
		}
	}
	files := t.Attachments()
	if err := e.autochat.Start(ctx, t, text, files, cfg); err != nil {
		return err
	}
	t.Detach("")
	return nil
}

// ToggleClosed flips the closed flag of a user message and persists it.
func (e *Engine) ToggleClosed(ctx context.Context, t *tab.Tab, messageID string) error {
	closed, err := t.ToggleClosed(messageID)
	if err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.SetMessageClosed(ctx, messageID, closed); err != nil {
			e.log.Sugar().Warnw("persist closed flag", "message", messageID, "error", err)
		}
	}
	e.changed()
	return nil
}

// attach adds a file, resolved against the workspace root, to the tab's
// next submission.
func (e *Engine) attach(t *tab.Tab, path string) error {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.workspace.Root, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("attach: %s is a directory", path)
	}
	t.Attach(path)
	t.Append(domain.SystemMessage(attachmentSummary(t.Attachments())))
	return nil
}

func attachmentSummary(files []string) string {
	if len(files) == 0 {
		return "No files attached."
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	return fmt.Sprintf("Attached (%d): %s", len(files), strings.Join(names, ", "))
}
