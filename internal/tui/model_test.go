package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/batalabs/convo/internal/config"
	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/engine"
	"github.com/batalabs/convo/internal/workspace"
)

var (
	atottoRead  = clipboard.ReadAll
	atottoWrite = clipboard.WriteAll
)

// newTestModel returns a model over an engine with no backend and no
// store, which keeps every directive that is purely local usable.
func newTestModel(t *testing.T) (Model, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	prefs := config.DefaultPreferences()
	prefs.CommandsFile = filepath.Join(dir, "commands.yaml")
	e := engine.New(engine.Options{Workspace: workspace.New(dir), Prefs: prefs})
	if _, err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	m := New(context.Background(), e, "test")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), e
}

func typeText(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

// run executes cmd and every command batched inside it.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func findInputDone(t *testing.T, msgs []tea.Msg) inputDoneMsg {
	t.Helper()
	for _, msg := range msgs {
		if done, ok := msg.(inputDoneMsg); ok {
			return done
		}
	}
	t.Fatalf("no inputDoneMsg in %v", msgs)
	return inputDoneMsg{}
}

func TestModel_submitDirective(t *testing.T) {
	m, e := newTestModel(t)
	m = typeText(m, "/help")
	m, cmd := press(m, tea.KeyEnter)
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}

	done := findInputDone(t, run(cmd))
	if done.err != nil || done.line != "/help" {
		t.Fatalf("inputDone = %+v", done)
	}
	tb, _ := e.Tabs().Active()
	if tb.Len() != 1 || !strings.Contains(tb.Messages()[0].Text, "/autochat") {
		t.Errorf("help turn missing: %+v", tb.Messages())
	}
	if !strings.Contains(m.View(), "/autochat") {
		t.Error("view does not show the help turn")
	}
}

func TestModel_emptyEnterIsIgnored(t *testing.T) {
	m, _ := newTestModel(t)
	m = typeText(m, "   ")
	_, cmd := press(m, tea.KeyEnter)
	if cmd != nil {
		t.Error("blank input should not submit")
	}
}

func TestModel_busyAlert(t *testing.T) {
	m, _ := newTestModel(t)
	next, cmd := m.Update(inputDoneMsg{line: "hi", err: domain.ErrTabBusy})
	m = next.(Model)
	if !strings.HasPrefix(m.alert, "Busy") {
		t.Errorf("alert = %q", m.alert)
	}
	if cmd == nil {
		t.Error("alerts schedule their own expiry")
	}
	seq := m.alertSeq
	next, _ = m.Update(clearAlertMsg{seq: seq - 1})
	if next.(Model).alert == "" {
		t.Error("a stale clear must not remove a newer alert")
	}
	next, _ = m.Update(clearAlertMsg{seq: seq})
	if next.(Model).alert != "" {
		t.Error("alert not cleared")
	}
}

func TestModel_alertFromOtherSession(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(AlertMsg{SessionID: "0123456789abcdef", Text: "Carol failed"})
	if got := next.(Model).alert; got != "[01234567] Carol failed" {
		t.Errorf("alert = %q", got)
	}
	if !strings.Contains(next.(Model).View(), "Carol failed") {
		t.Error("alert not shown")
	}
}

func TestModel_completion(t *testing.T) {
	m, _ := newTestModel(t)

	m = typeText(m, "/he")
	m, _ = press(m, tea.KeyTab)
	if got := m.input.Value(); got != "/help " {
		t.Errorf("single completion = %q", got)
	}

	m.input.SetValue("/c")
	m, _ = press(m, tea.KeyTab)
	if !m.completionOn || len(m.completions) != 3 {
		t.Fatalf("completions = %q", m.completions)
	}
	m, _ = press(m, tea.KeyTab)
	if m.completionIdx != 1 {
		t.Errorf("tab should cycle, idx = %d", m.completionIdx)
	}
	m, _ = press(m, tea.KeyShiftTab)
	m, _ = press(m, tea.KeyShiftTab)
	if m.completionIdx != 2 {
		t.Errorf("shift+tab should wrap, idx = %d", m.completionIdx)
	}
	m, cmd := press(m, tea.KeyEnter)
	if cmd != nil || m.completionOn {
		t.Error("enter on a completion should accept it, not submit")
	}
	if got := m.input.Value(); got != "/config " {
		t.Errorf("accepted completion = %q", got)
	}
}

func TestModel_history(t *testing.T) {
	m, _ := newTestModel(t)
	for _, line := range []string{"/help", "/commands"} {
		m.input.SetValue(line)
		m, _ = press(m, tea.KeyEnter)
	}
	m = typeText(m, "draft")

	m, _ = press(m, tea.KeyUp)
	if got := m.input.Value(); got != "/commands" {
		t.Errorf("up = %q", got)
	}
	m, _ = press(m, tea.KeyUp)
	m, _ = press(m, tea.KeyUp)
	if got := m.input.Value(); got != "/help" {
		t.Errorf("up at oldest = %q", got)
	}
	m, _ = press(m, tea.KeyDown)
	m, _ = press(m, tea.KeyDown)
	if got := m.input.Value(); got != "draft" {
		t.Errorf("down back to draft = %q", got)
	}
}

func TestModel_tabsKeepDrafts(t *testing.T) {
	m, e := newTestModel(t)
	first, _ := e.Tabs().Active()
	second := e.Tabs().Open("", nil)

	m = typeText(m, "for the second tab")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlRight})
	m = next.(Model)
	if active, _ := e.Tabs().Active(); active.ID() != first.ID() {
		t.Fatalf("cycle should wrap to the first tab")
	}
	if m.input.Value() != "" {
		t.Errorf("first tab draft = %q", m.input.Value())
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlLeft})
	m = next.(Model)
	if m.input.Value() != "for the second tab" {
		t.Errorf("second tab draft lost: %q", m.input.Value())
	}
	if got := second.PendingInput(); got != "for the second tab" {
		t.Errorf("PendingInput = %q", got)
	}
	if !strings.Contains(m.tabBar(), "1 no session") || !strings.Contains(m.tabBar(), "2 no session") {
		t.Errorf("tab bar = %q", m.tabBar())
	}
}

func TestModel_newSessionWithoutBackend(t *testing.T) {
	m, _ := newTestModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	msgs := run(cmd)
	if len(msgs) != 1 {
		t.Fatalf("msgs = %v", msgs)
	}
	done, ok := msgs[0].(opDoneMsg)
	var be *domain.BackendError
	if !ok || !errors.As(done.err, &be) {
		t.Fatalf("op = %+v", msgs[0])
	}
	next, _ = next.Update(done)
	if !strings.HasPrefix(next.(Model).alert, "new session: ") {
		t.Errorf("alert = %q", next.(Model).alert)
	}
}

func TestModel_closingLastTabQuits(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlW})
	msgs := run(cmd)
	_, quit := m.Update(msgs[0])
	if quit == nil {
		t.Fatal("expected quit")
	}
	if _, ok := quit().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_welcomeAndFooter(t *testing.T) {
	m, e := newTestModel(t)
	view := m.View()
	for _, want := range []string{"Welcome to convo", "convo test · " + e.Workspace().Name(), "ctrl+o sessions"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_closedMessagesInvalidateCache(t *testing.T) {
	m, e := newTestModel(t)
	tb, _ := e.Tabs().Active()
	user := domain.NewMessage(domain.KindUser, "you", "a very long paste")
	tb.Append(user)
	if strings.Contains(m.View(), "(closed") {
		t.Fatal("message should start open")
	}
	if _, err := tb.ToggleClosed(user.ID); err != nil {
		t.Fatalf("ToggleClosed: %v", err)
	}
	if !strings.Contains(m.View(), "(closed") {
		t.Error("view not refreshed after closing a message")
	}
}

func TestModel_clipboard(t *testing.T) {
	var copied string
	clipboardWriteAll = func(s string) error { copied = s; return nil }
	clipboardReadAll = func() (string, error) { return "pasted\n", nil }
	t.Cleanup(func() {
		clipboardWriteAll = atottoWrite
		clipboardReadAll = atottoRead
	})

	m, e := newTestModel(t)
	tb, _ := e.Tabs().Active()
	tb.Append(domain.NewMessage(domain.KindAI, "Bob", "the answer"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	msgs := run(cmd)
	if copied != "the answer" {
		t.Errorf("copied %q", copied)
	}
	next, _ := m.Update(msgs[0])
	if got := next.(Model).alert; got != "Copied last reply." {
		t.Errorf("alert = %q", got)
	}

	m = typeText(m, "x ")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlV})
	next, _ = m.Update(run(cmd)[0])
	if got := next.(Model).input.Value(); got != "x pasted" {
		t.Errorf("input after paste = %q", got)
	}
}
