package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/engine"
	"github.com/batalabs/convo/internal/tab"
)

// ---------------------------------------------------------------------------
// Bubble Tea message types
// ---------------------------------------------------------------------------

// ChangedMsg tells the model that engine state changed outside a key press,
// for example a streamed turn being filed.
type ChangedMsg struct{}

// AlertMsg carries a transient user-visible alert from the engine.
type AlertMsg struct {
	SessionID string
	Text      string
}

// SessionsMsg carries stored sessions. Picker is set when the user asked
// for the session picker.
type SessionsMsg struct {
	Sessions []domain.Session
	Err      error
	Picker   bool
}

type inputDoneMsg struct {
	line string
	err  error
}

type opDoneMsg struct {
	what string
	err  error
}

type clearAlertMsg struct{ seq int }

// alertTTL is how long an alert stays on the status line.
const alertTTL = 6 * time.Second

// Model is the terminal front-end. All conversation state lives in the
// engine; the model only holds view state.
type Model struct {
	ctx     context.Context
	eng     *engine.Engine
	version string

	width  int
	height int

	input   textinput.Model
	spinner spinner.Model
	ticking bool

	history      []string
	historyIdx   int
	historyDraft string

	completions   []string
	completionIdx int
	completionOn  bool
	sessionIDs    []string

	alert    string
	alertSeq int

	// scroll is the number of transcript lines hidden below the view.
	scroll int
	cache  *transcriptCache
	picker *SessionPicker
}

type transcriptCache struct {
	tabID  string
	n      int
	width  int
	closed int
	lines  []string
}

// New creates the model. ctx bounds every engine call the model makes.
func New(ctx context.Context, eng *engine.Engine, version string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = ThinkingStyle

	ti := textinput.New()
	ti.Prompt = PromptStyle.Render("❯ ")
	ti.Placeholder = "Message the agents, or " + eng.Prefs().CommandPrefix + "help"
	ti.Focus()

	return Model{
		ctx:        ctx,
		eng:        eng,
		version:    version,
		input:      ti,
		spinner:    sp,
		historyIdx: -1,
		cache:      &transcriptCache{},
		width:      80,
		height:     24,
	}
}

// Init loads session ids for completion and starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadSessions(false))
}

func (m Model) loadSessions(picker bool) tea.Cmd {
	eng, ctx := m.eng, m.ctx
	return func() tea.Msg {
		sessions, err := eng.RecentSessions(ctx, 50)
		return SessionsMsg{Sessions: sessions, Err: err, Picker: picker}
	}
}

func (m Model) activeTab() (*tab.Tab, bool) {
	return m.eng.Tabs().Active()
}

func (m Model) anyThinking() bool {
	for _, t := range m.eng.Tabs().Tabs() {
		if t.Thinking() {
			return true
		}
	}
	return false
}

// startSpinner ticks the spinner while any tab is thinking.
func (m *Model) startSpinner() tea.Cmd {
	if m.ticking || !m.anyThinking() {
		return nil
	}
	m.ticking = true
	return m.spinner.Tick
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-4)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ChangedMsg:
		return m, m.startSpinner()

	case AlertMsg:
		return m.setAlert(m.alertText(msg))

	case clearAlertMsg:
		if msg.seq == m.alertSeq {
			m.alert = ""
		}
		return m, nil

	case inputDoneMsg:
		if m.eng.Tabs().Len() == 0 {
			return m, tea.Quit
		}
		if errors.Is(msg.err, domain.ErrTabBusy) {
			return m.setAlert("Busy: wait for the reply, or press esc to stop.")
		}
		return m, m.startSpinner()

	case opDoneMsg:
		if msg.err != nil {
			return m.setAlert(msg.what + ": " + msg.err.Error())
		}
		if m.eng.Tabs().Len() == 0 {
			return m, tea.Quit
		}
		m.scroll = 0
		return m, m.startSpinner()

	case SessionsMsg:
		if msg.Err != nil {
			if msg.Picker {
				return m.setAlert("sessions: " + msg.Err.Error())
			}
			return m, nil
		}
		m.sessionIDs = m.sessionIDs[:0]
		for _, s := range msg.Sessions {
			m.sessionIDs = append(m.sessionIDs, s.ID)
		}
		if msg.Picker {
			open := map[string]bool{}
			for _, t := range m.eng.Tabs().Tabs() {
				open[t.SessionID()] = true
			}
			m.picker = NewSessionPicker(msg.Sessions, open)
		}
		return m, nil

	case PasteMsg:
		if msg.Err != nil {
			return m.setAlert(msg.Err.Error())
		}
		m.input.SetValue(m.input.Value() + strings.TrimRight(msg.Text, "\r\n"))
		m.input.CursorEnd()
		return m, nil

	case ClipboardWriteMsg:
		if msg.Err != nil {
			return m.setAlert(msg.Err.Error())
		}
		return m.setAlert("Copied last reply.")

	case spinner.TickMsg:
		if !m.anyThinking() {
			m.ticking = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) alertText(msg AlertMsg) string {
	t, ok := m.activeTab()
	if msg.SessionID == "" || (ok && t.SessionID() == msg.SessionID) {
		return msg.Text
	}
	short := msg.SessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "[" + short + "] " + msg.Text
}

func (m Model) setAlert(text string) (tea.Model, tea.Cmd) {
	m.alertSeq++
	m.alert = text
	seq := m.alertSeq
	return m, tea.Tick(alertTTL, func(time.Time) tea.Msg { return clearAlertMsg{seq: seq} })
}

// ---------------------------------------------------------------------------
// Key handling
// ---------------------------------------------------------------------------

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.picker.IsActive() {
		return m.handlePickerKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		if m.completionOn {
			m.dismissCompletions()
			return m, nil
		}
		return m, tea.Quit

	case "esc":
		if m.completionOn {
			m.dismissCompletions()
			return m, nil
		}
		if t, ok := m.activeTab(); ok && t.Thinking() {
			if !m.eng.AutoChat().Running(t) {
				return m.setAlert("Waiting for the reply; it cannot be cancelled.")
			}
			m.eng.AutoChat().Stop(t)
		}
		return m, nil

	case "enter":
		if m.completionOn && len(m.completions) > 0 {
			m.input.SetValue(m.completions[m.completionIdx] + " ")
			m.input.CursorEnd()
			m.dismissCompletions()
			return m, nil
		}
		return m.submit()

	case "tab":
		return m.complete(1), nil
	case "shift+tab":
		return m.complete(-1), nil

	case "up":
		if m.completionOn {
			return m.complete(-1), nil
		}
		m.browseHistory(1)
		return m, nil
	case "down":
		if m.completionOn {
			return m.complete(1), nil
		}
		m.browseHistory(-1)
		return m, nil

	case "ctrl+right", "alt+]":
		m.cycleTab(1)
		return m, nil
	case "ctrl+left", "alt+[":
		m.cycleTab(-1)
		return m, nil

	case "ctrl+n":
		return m, m.op("new session", func(ctx context.Context) error {
			_, err := m.eng.NewSession(ctx)
			return err
		})
	case "ctrl+w":
		t, ok := m.activeTab()
		if !ok {
			return m, tea.Quit
		}
		return m, m.op("close tab", func(context.Context) error { return m.eng.CloseTab(t.ID()) })
	case "ctrl+o":
		return m, m.loadSessions(true)
	case "ctrl+y":
		return m, WriteClipboardCmd(m.lastReply())
	case "ctrl+v":
		return m, ReadClipboardCmd()

	case "pgup":
		m.scroll += max(1, m.transcriptHeight()-2)
		return m, nil
	case "pgdown":
		m.scroll = max(0, m.scroll-max(1, m.transcriptHeight()-2))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.completionOn {
		m.dismissCompletions()
	}
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.picker
	if p.Mode() == pickerConfirmDelete {
		switch msg.String() {
		case "y", "Y":
			id := p.RemoveSelected()
			return m, m.op("delete session", func(ctx context.Context) error {
				return m.eng.DeleteSession(ctx, id)
			})
		case "n", "N", "esc":
			p.CancelMode()
		}
		return m, nil
	}

	switch msg.String() {
	case "esc", "ctrl+c":
		p.Dismiss()
	case "up":
		p.MoveUp()
	case "down":
		p.MoveDown()
	case "backspace":
		p.BackspaceFilter()
	case "ctrl+d":
		if !p.StartDelete() {
			return m.setAlert("Close the session's tab before deleting it.")
		}
	case "enter", "ctrl+s":
		sel := p.Selected()
		if sel == nil {
			return m, nil
		}
		id := sel.ID
		p.Dismiss()
		if msg.String() == "enter" {
			return m, m.op("open session", func(ctx context.Context) error {
				_, err := m.eng.OpenSession(ctx, id)
				return err
			})
		}
		t, ok := m.activeTab()
		if !ok {
			return m, nil
		}
		return m, m.op("switch session", func(ctx context.Context) error {
			_, err := m.eng.SwitchSession(ctx, t, id)
			return err
		})
	default:
		if msg.Type == tea.KeyRunes {
			for _, r := range msg.Runes {
				p.AppendFilter(r)
			}
		}
	}
	return m, nil
}

// op runs fn off the UI goroutine and reports back with opDoneMsg.
func (m Model) op(what string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{what: what, err: fn(ctx)}
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	if strings.TrimSpace(line) == "" {
		return m, nil
	}
	t, ok := m.activeTab()
	if !ok {
		return m, tea.Quit
	}
	m.input.Reset()
	t.SetPendingInput("")
	m.pushHistory(line)
	m.scroll = 0

	eng, ctx := m.eng, m.ctx
	run := func() tea.Msg {
		_, err := eng.HandleInput(ctx, t, line)
		return inputDoneMsg{line: line, err: err}
	}
	// Thinking is set inside HandleInput, so the spinner is started as
	// soon as the call is under way.
	m.ticking = true
	return m, tea.Batch(run, m.spinner.Tick)
}

func (m *Model) cycleTab(delta int) {
	if t, ok := m.activeTab(); ok {
		t.SetPendingInput(m.input.Value())
	}
	m.eng.Tabs().Cycle(delta)
	m.dismissCompletions()
	m.scroll = 0
	if t, ok := m.activeTab(); ok {
		m.input.SetValue(t.PendingInput())
		m.input.CursorEnd()
	}
}

func (m Model) complete(delta int) Model {
	if !m.completionOn {
		c := Completer{Parser: m.eng.Parser(), Names: m.eng.CompletionNames(), SessionIDs: m.sessionIDs}
		m.completions = c.Complete(m.input.Value())
		switch len(m.completions) {
		case 0:
			return m
		case 1:
			m.input.SetValue(m.completions[0] + " ")
			m.input.CursorEnd()
			m.completions = nil
			return m
		}
		m.completionOn = true
		m.completionIdx = 0
		return m
	}
	n := len(m.completions)
	m.completionIdx = ((m.completionIdx+delta)%n + n) % n
	return m
}

func (m *Model) dismissCompletions() {
	m.completionOn = false
	m.completions = nil
	m.completionIdx = 0
}

func (m *Model) pushHistory(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
	}
	m.historyIdx = -1
	m.historyDraft = ""
}

// browseHistory moves through submitted lines; +1 is older.
func (m *Model) browseHistory(delta int) {
	if len(m.history) == 0 {
		return
	}
	if m.historyIdx == -1 {
		if delta < 0 {
			return
		}
		m.historyDraft = m.input.Value()
	}
	next := m.historyIdx + delta
	switch {
	case next < 0:
		m.historyIdx = -1
		m.input.SetValue(m.historyDraft)
	case next >= len(m.history):
		return
	default:
		m.historyIdx = next
		m.input.SetValue(m.history[len(m.history)-1-next])
	}
	m.input.CursorEnd()
}

func (m Model) lastReply() string {
	t, ok := m.activeTab()
	if !ok {
		return ""
	}
	msgs := t.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		switch msgs[i].Kind {
		case domain.KindAI, domain.KindActionResult, domain.KindShellOutput:
			return msgs[i].Text
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View renders the tab bar, the active transcript, the status lines and
// the input.
func (m Model) View() string {
	if m.picker.IsActive() {
		return m.picker.View(m.width)
	}
	var b strings.Builder
	b.WriteString(m.tabBar())
	b.WriteString("\n")

	bottom := m.bottomLines()
	height := m.height - 1 - len(bottom)
	lines := m.transcriptLines()
	end := max(0, len(lines)-m.scroll)
	start := max(0, end-height)
	visible := lines[start:end]
	for i := len(visible); i < height; i++ {
		b.WriteString("\n")
	}
	for _, l := range visible {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(bottom, "\n"))
	return b.String()
}

func (m Model) tabBar() string {
	active, _ := m.activeTab()
	var parts []string
	for i, t := range m.eng.Tabs().Tabs() {
		label := fmt.Sprintf("%d ", i+1)
		if sid := t.SessionID(); sid == "" {
			label += "no session"
		} else {
			label += sid[:min(8, len(sid))]
		}
		switch t.Mode() {
		case domain.ModeThinking:
			label += " " + m.spinner.View()
		case domain.ModeAwaiting:
			label += " ?"
		}
		if active != nil && t.ID() == active.ID() {
			parts = append(parts, ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, TabStyle.Render(label))
		}
	}
	return clip(lipgloss.JoinHorizontal(lipgloss.Top, parts...), m.width)
}

func (m Model) transcriptHeight() int {
	return max(1, m.height-1-len(m.bottomLines()))
}

func (m Model) transcriptLines() []string {
	t, ok := m.activeTab()
	if !ok {
		return nil
	}
	msgs := t.Messages()
	if len(msgs) == 0 {
		return []string{WelcomeStyle.Render("Welcome to convo. Type " + m.eng.Prefs().CommandPrefix + "help for commands.")}
	}
	closed := 0
	for i, msg := range msgs {
		if msg.Closed {
			closed += i + 1
		}
	}
	c := m.cache
	if c.tabID == t.ID() && c.n == len(msgs) && c.width == m.width && c.closed == closed {
		return c.lines
	}
	*c = transcriptCache{tabID: t.ID(), n: len(msgs), width: m.width, closed: closed, lines: RenderTranscript(msgs, m.width)}
	return c.lines
}

func (m Model) bottomLines() []string {
	var out []string
	if t, ok := m.activeTab(); ok {
		if s := m.statusLine(t); s != "" {
			out = append(out, s)
		}
	}
	if m.alert != "" {
		out = append(out, ErrorLineStyle.Render(TruncateToWidth(m.alert, max(m.width, 20))))
	}
	if m.completionOn {
		out = append(out, m.completionMenu())
	}
	out = append(out, m.input.View())

	footer := fmt.Sprintf("convo %s · %s", m.version, m.eng.Workspace().Name())
	if m.scroll > 0 {
		footer += fmt.Sprintf(" · scrolled %d", m.scroll)
	}
	keys := "  ctrl+n new · ctrl+o sessions · ctrl+←/→ tabs · esc stop"
	out = append(out, FooterHead.Render(footer)+FooterMeta.Render(keys))
	return out
}

func (m Model) statusLine(t *tab.Tab) string {
	var parts []string
	switch t.Mode() {
	case domain.ModeThinking:
		who := "Thinking"
		if p := t.ThinkingPersona(); p != "" {
			who = p + " is thinking"
		}
		parts = append(parts, ThinkingStyle.Render(m.spinner.View()+" "+who+"..."))
	case domain.ModeAwaiting:
		parts = append(parts, AwaitingStyle.Render("Awaiting your confirmation"))
	}
	if n := len(t.Attachments()); n > 0 {
		parts = append(parts, SystemStyle.Render(fmt.Sprintf("📎 %d attached", n)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) completionMenu() string {
	var parts []string
	for i, c := range m.completions {
		if i == m.completionIdx {
			parts = append(parts, CompletionSelStyle.Render(c))
		} else {
			parts = append(parts, CompletionStyle.Render(c))
		}
	}
	return clip(strings.Join(parts, " "), m.width)
}

// clip cuts styled text to width cells without breaking escape sequences.
func clip(s string, width int) string {
	return lipgloss.NewStyle().MaxWidth(max(width, 20)).Render(s)
}
