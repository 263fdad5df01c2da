package domain

// Event is anything the backend pushes to the client asynchronously.
type Event interface {
	isEvent()
}

// DialogueTurn is one streamed turn. An empty Author marks an error turn.
// An empty SessionID targets the active tab.
type DialogueTurn struct {
	SessionID string `json:"session_id,omitempty"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Backend   string `json:"backend,omitempty"`
	Model     string `json:"model,omitempty"`
}

// IsError reports whether the turn follows the empty-author error convention.
func (t DialogueTurn) IsError() bool {
	return t.Author == ""
}

// Message converts the turn into a transcript entry.
func (t DialogueTurn) Message() Message {
	if t.IsError() {
		return ErrorMessage(t.Content)
	}
	m := NewMessage(KindAI, t.Author, t.Content)
	m.Backend = t.Backend
	m.ModelName = t.Model
	return m
}

// WorkspaceSwitched signals that session and workspace context must be refreshed.
type WorkspaceSwitched struct{}

func (DialogueTurn) isEvent()      {}
func (WorkspaceSwitched) isEvent() {}
