package tab

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batalabs/convo/internal/domain"
)

func TestTab_thinkingTransitions(t *testing.T) {
	tb := New("s1", nil)
	assert.Equal(t, domain.ModeIdle, tb.Mode())

	_, err := tb.Acquire("Ayaka")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeThinking, tb.Mode())
	assert.Equal(t, "Ayaka", tb.ThinkingPersona())

	_, err = tb.Acquire("Bob")
	assert.ErrorIs(t, err, domain.ErrTabBusy)
	assert.Equal(t, "Ayaka", tb.ThinkingPersona(), "rejected submission must not replace the persona")

	tb.EndThinking()
	assert.Equal(t, domain.ModeIdle, tb.Mode())
	tb.EndThinking()
	assert.False(t, tb.Thinking())
}

func TestTab_staleHoldKeepsNewerThinking(t *testing.T) {
	tb := New("s1", nil)
	first, err := tb.Acquire("")
	require.NoError(t, err)

	// A streamed error turn forces Idle while the first call is outstanding.
	tb.EndThinking()

	second, err := tb.Acquire("Bob")
	require.NoError(t, err)

	first.Release()
	assert.True(t, tb.Thinking(), "a stale hold must not end a newer submission")
	assert.Equal(t, "Bob", tb.ThinkingPersona())

	second.Release()
	assert.False(t, tb.Thinking())
	second.Release()
	Hold{}.Release()
	assert.False(t, tb.Thinking())
}

func TestTab_awaiting(t *testing.T) {
	tb := New("s1", nil)
	tb.SetAwaiting(true)
	assert.Equal(t, domain.ModeAwaiting, tb.Mode())

	_, err := tb.Acquire("")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeThinking, tb.Mode(), "thinking wins over awaiting")
	tb.EndThinking()
	assert.Equal(t, domain.ModeAwaiting, tb.Mode())

	tb.SetAwaiting(false)
	assert.Equal(t, domain.ModeIdle, tb.Mode())
}

func TestTab_concurrentAcquire(t *testing.T) {
	tb := New("s1", nil)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tb.Acquire(""); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

func TestTab_ToggleClosed(t *testing.T) {
	user := domain.NewMessage(domain.KindUser, "you", "long question")
	ai := domain.NewMessage(domain.KindAI, "Bob", "answer")
	tb := New("s1", []domain.Message{user, ai})

	closed, err := tb.ToggleClosed(user.ID)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = tb.ToggleClosed(user.ID)
	require.NoError(t, err)
	assert.False(t, closed)

	msgs := tb.Messages()
	assert.Equal(t, "long question", msgs[0].Text)

	_, err = tb.ToggleClosed(ai.ID)
	assert.Error(t, err)
	_, err = tb.ToggleClosed("missing")
	assert.Error(t, err)
}

func TestTab_MessagesIsCopy(t *testing.T) {
	history := []domain.Message{domain.NewMessage(domain.KindUser, "you", "hi")}
	tb := New("s1", history)
	history[0].Text = "mutated"

	msgs := tb.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)

	msgs[0].Text = "also mutated"
	assert.Equal(t, "hi", tb.Messages()[0].Text)

	tb.Append(domain.SystemMessage("a"), domain.SystemMessage("b"))
	assert.Equal(t, 3, tb.Len())
}

func TestTab_attachments(t *testing.T) {
	tb := New("s1", nil)
	tb.Attach("a.go")
	tb.Attach("b.go")
	tb.Attach("a.go")
	assert.Equal(t, []string{"a.go", "b.go"}, tb.Attachments())

	assert.True(t, tb.Detach("a.go"))
	assert.False(t, tb.Detach("a.go"))
	assert.Equal(t, []string{"b.go"}, tb.Attachments())

	tb.SetPendingInput("look at this")
	input, files := tb.TakeSubmission()
	assert.Equal(t, "look at this", input)
	assert.Equal(t, []string{"b.go"}, files)
	assert.Empty(t, tb.Attachments())
	assert.Empty(t, tb.PendingInput())

	tb.Attach("c.go")
	assert.True(t, tb.Detach(""))
	assert.False(t, tb.Detach(""))
}

func TestManager(t *testing.T) {
	m := NewManager()
	_, ok := m.Active()
	assert.False(t, ok)

	a := m.Open("s1", nil)
	b := m.Open("s2", nil)
	c := m.Open("s3", nil)
	assert.Equal(t, 3, m.Len())

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, c.ID(), active.ID(), "newly opened tab is active")

	got, ok := m.BySession("s2")
	require.True(t, ok)
	assert.Equal(t, b.ID(), got.ID())
	_, ok = m.BySession("nope")
	assert.False(t, ok)

	require.NoError(t, m.SetActive(b.ID()))
	require.NoError(t, m.Close(b.ID()))
	active, _ = m.Active()
	assert.Equal(t, c.ID(), active.ID(), "right neighbour becomes active")

	require.NoError(t, m.Close(c.ID()))
	active, _ = m.Active()
	assert.Equal(t, a.ID(), active.ID())

	assert.ErrorIs(t, m.Close("missing"), domain.ErrTabNotFound)
	assert.ErrorIs(t, m.SetActive("missing"), domain.ErrTabNotFound)

	require.NoError(t, m.Close(a.ID()))
	_, ok = m.Active()
	assert.False(t, ok)
}

func TestManager_ReplaceAndCycle(t *testing.T) {
	m := NewManager()
	a := m.Open("s1", nil)
	b := m.Open("s2", nil)

	history := []domain.Message{domain.NewMessage(domain.KindAI, "Bob", "old")}
	r, err := m.Replace(b.ID(), "s9", history)
	require.NoError(t, err)
	assert.Equal(t, "s9", r.SessionID())
	assert.Equal(t, 1, r.Len())

	tabs := m.Tabs()
	require.Len(t, tabs, 2)
	assert.Equal(t, r.ID(), tabs[1].ID())
	active, _ := m.Active()
	assert.Equal(t, r.ID(), active.ID())

	m.Cycle(1)
	active, _ = m.Active()
	assert.Equal(t, a.ID(), active.ID())
	m.Cycle(-1)
	active, _ = m.Active()
	assert.Equal(t, r.ID(), active.ID())

	_, err = m.Replace("missing", "s1", nil)
	assert.ErrorIs(t, err, domain.ErrTabNotFound)
}
