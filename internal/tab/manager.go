package tab

import (
	"slices"
	"sync"

	"github.com/batalabs/convo/internal/domain"
)

// Manager owns every open tab and tracks which one is active.
type Manager struct {
	mu     sync.RWMutex
	tabs   []*Tab
	active string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Open creates a tab for sessionID seeded with history and makes it active.
func (m *Manager) Open(sessionID string, history []domain.Message) *Tab {
	t := New(sessionID, history)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs = append(m.tabs, t)
	m.active = t.ID()
	return t
}

// Replace swaps the tab with id for a fresh tab bound to sessionID,
// keeping its position. The old tab's state is discarded.
func (m *Manager) Replace(id, sessionID string, history []domain.Message) (*Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return nil, domain.ErrTabNotFound
	}
	t := New(sessionID, history)
	m.tabs[i] = t
	if m.active == id {
		m.active = t.ID()
	}
	return t, nil
}

// Close removes a tab. When the active tab closes, its right neighbour
// (or the new last tab) becomes active.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return domain.ErrTabNotFound
	}
	m.tabs = slices.Delete(m.tabs, i, i+1)
	if m.active == id {
		m.active = ""
		if len(m.tabs) > 0 {
			m.active = m.tabs[min(i, len(m.tabs)-1)].ID()
		}
	}
	return nil
}

// Get returns the tab with id.
func (m *Manager) Get(id string) (*Tab, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return m.tabs[i], true
}

// BySession returns the first open tab bound to sessionID.
func (m *Manager) BySession(sessionID string) (*Tab, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tabs {
		if t.SessionID() == sessionID {
			return t, true
		}
	}
	return nil, false
}

// Active returns the active tab, if any.
func (m *Manager) Active() (*Tab, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexLocked(m.active)
	if i < 0 {
		return nil, false
	}
	return m.tabs[i], true
}

// SetActive makes the tab with id active.
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(id) < 0 {
		return domain.ErrTabNotFound
	}
	m.active = id
	return nil
}

// Cycle moves the active tab by delta positions, wrapping around.
func (m *Manager) Cycle(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.tabs)
	if n == 0 {
		return
	}
	i := max(m.indexLocked(m.active), 0)
	m.active = m.tabs[((i+delta)%n+n)%n].ID()
}

// Tabs returns the open tabs in display order.
func (m *Manager) Tabs() []*Tab {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.tabs)
}

// Len returns the number of open tabs.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tabs)
}

func (m *Manager) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(m.tabs, func(t *Tab) bool { return t.id == id })
}
