// Package tab holds the per-conversation state machines.
package tab

import (
	"fmt"
	"slices"
	"sync"

	"github.com/batalabs/convo/internal/domain"
)

// Tab is one live conversation bound to a backend session.
//
// States: Idle -> Thinking -> Idle for a normal turn and Idle -> Awaiting ->
// Idle when the backend asks for confirmation. Thinking is entered by
// Acquire and left when that Hold is released. EndThinking forces the tab
// back to Idle regardless of who entered Thinking; a Hold released after
// that is a no-op.
type Tab struct {
	mu sync.Mutex

	id        string
	sessionID string
	messages  []domain.Message

	pendingInput    string
	attachedFiles   []string
	thinking        bool
	thinkingPersona string
	thinkingGen     uint64
	awaiting        bool
	dragging        bool
}

// New returns an idle tab for sessionID seeded with history.
func New(sessionID string, history []domain.Message) *Tab {
	return &Tab{
		id:        domain.NewUUID(),
		sessionID: sessionID,
		messages:  slices.Clone(history),
	}
}

// ID returns the tab's identifier.
func (t *Tab) ID() string { return t.id }

// SessionID returns the backend session the tab is bound to.
func (t *Tab) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Append adds messages to the end of the transcript.
func (t *Tab) Append(msgs ...domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msgs...)
}

// Messages returns a copy of the transcript.
func (t *Tab) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

// Len returns the number of messages in the transcript.
func (t *Tab) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// ToggleClosed flips the presentation-only closed flag of a user message.
// The message text is never touched.
func (t *Tab) ToggleClosed(messageID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].ID != messageID {
			continue
		}
		if t.messages[i].Kind != domain.KindUser {
			return false, fmt.Errorf("message %s is not a user message", messageID)
		}
		t.messages[i].Closed = !t.messages[i].Closed
		return t.messages[i].Closed, nil
	}
	return false, fmt.Errorf("message %s not found", messageID)
}

// Hold is one entry into Thinking. The zero Hold releases nothing.
type Hold struct {
	t   *Tab
	gen uint64
}

// Acquire marks the tab as waiting on the backend and returns the hold that
// ends it. It fails with domain.ErrTabBusy if a submission is already
// outstanding.
func (t *Tab) Acquire(persona string) (Hold, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.thinking {
		return Hold{}, domain.ErrTabBusy
	}
	t.thinkingGen++
	t.thinking = true
	t.thinkingPersona = persona
	return Hold{t: t, gen: t.thinkingGen}, nil
}

// Release ends the Thinking state h started. It does nothing if that state
// was already ended, even when a newer submission is now outstanding.
func (h Hold) Release() {
	if h.t == nil {
		return
	}
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	if h.t.thinking && h.t.thinkingGen == h.gen {
		h.t.thinking = false
		h.t.thinkingPersona = ""
	}
}

// EndThinking returns the tab to Idle (or Awaiting) whoever entered
// Thinking. Calling it on an idle tab is a no-op.
func (t *Tab) EndThinking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thinking = false
	t.thinkingPersona = ""
}

// Thinking reports whether a submission is outstanding.
func (t *Tab) Thinking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thinking
}

// ThinkingPersona names who the tab is waiting on, if anyone.
func (t *Tab) ThinkingPersona() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thinkingPersona
}

// SetAwaiting mirrors the backend-declared confirmation state.
func (t *Tab) SetAwaiting(awaiting bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.awaiting = awaiting
}

// Mode derives the observable state. Thinking takes precedence.
func (t *Tab) Mode() domain.AppMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.thinking:
		return domain.ModeThinking
	case t.awaiting:
		return domain.ModeAwaiting
	default:
		return domain.ModeIdle
	}
}

// PendingInput returns the unsent input buffer.
func (t *Tab) PendingInput() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingInput
}

// SetPendingInput replaces the unsent input buffer.
func (t *Tab) SetPendingInput(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingInput = s
}

// Attach adds a file to the next submission. Duplicates are ignored.
func (t *Tab) Attach(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.attachedFiles, path) {
		t.attachedFiles = append(t.attachedFiles, path)
	}
}

// Detach removes one attachment, or all of them when path is empty.
// It reports whether anything was removed.
func (t *Tab) Detach(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if path == "" {
		n := len(t.attachedFiles)
		t.attachedFiles = nil
		return n > 0
	}
	i := slices.Index(t.attachedFiles, path)
	if i < 0 {
		return false
	}
	t.attachedFiles = slices.Delete(t.attachedFiles, i, i+1)
	return true
}

// Attachments returns a copy of the attached file list.
func (t *Tab) Attachments() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.attachedFiles)
}

// TakeSubmission returns and clears the pending input and attachments.
func (t *Tab) TakeSubmission() (input string, files []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	input, files = t.pendingInput, t.attachedFiles
	t.pendingInput, t.attachedFiles = "", nil
	return input, files
}

// SetDragging records whether a file is being dragged over the tab.
func (t *Tab) SetDragging(d bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dragging = d
}

// Dragging reports whether a file is being dragged over the tab.
func (t *Tab) Dragging() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dragging
}
