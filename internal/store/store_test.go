package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/batalabs/convo/internal/domain"
)

// testStore returns a Store backed by an in-memory SQLite database.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_UpsertSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("creates and updates", func(t *testing.T) {
		if err := s.UpsertSession(ctx, domain.Session{ID: "sess-1", ProjectPath: "/tmp/project"}); err != nil {
			t.Fatalf("UpsertSession: %v", err)
		}
		got, err := s.GetSession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.Title != "New Session" {
			t.Errorf("Title = %q, want %q", got.Title, "New Session")
		}
		if got.ProjectPath != "/tmp/project" {
			t.Errorf("ProjectPath = %q", got.ProjectPath)
		}

		err = s.UpsertSession(ctx, domain.Session{ID: "sess-1", ProjectPath: "/tmp/project", Title: "Tabs", Mode: domain.ModeAwaitingConfirmation})
		if err != nil {
			t.Fatalf("UpsertSession update: %v", err)
		}
		got, _ = s.GetSession(ctx, "sess-1")
		if got.Title != "Tabs" || !got.Awaiting() {
			t.Errorf("unexpected session after update: %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be parsed")
		}
	})

	t.Run("rejects empty id", func(t *testing.T) {
		if err := s.UpsertSession(ctx, domain.Session{}); err == nil {
			t.Error("expected error for empty id")
		}
	})
}

func TestStore_GetSession_notFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetSession(context.Background(), "nonexistent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListSessions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		project := "/a"
		if i%2 == 1 {
			project = "/b"
		}
		if err := s.UpsertSession(ctx, domain.Session{ID: fmt.Sprintf("s-%d", i), ProjectPath: project}); err != nil {
			t.Fatalf("UpsertSession: %v", err)
		}
	}

	t.Run("filters by project", func(t *testing.T) {
		got, err := s.ListSessions(ctx, "/a", 10)
		if err != nil {
			t.Fatalf("ListSessions: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("len = %d, want 3", len(got))
		}
	})

	t.Run("empty project lists all", func(t *testing.T) {
		got, _ := s.ListSessions(ctx, "", 10)
		if len(got) != 5 {
			t.Errorf("len = %d, want 5", len(got))
		}
	})

	t.Run("limit applies", func(t *testing.T) {
		got, _ := s.ListSessions(ctx, "", 2)
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})

	t.Run("negative limit defaults to 10", func(t *testing.T) {
		got, _ := s.ListSessions(ctx, "", -1)
		if len(got) != 5 {
			t.Errorf("len = %d, want 5", len(got))
		}
	})

	t.Run("latest session", func(t *testing.T) {
		latest, err := s.LatestSession(ctx, "/b")
		if err != nil {
			t.Fatalf("LatestSession: %v", err)
		}
		if latest.ID != "s-3" {
			t.Errorf("latest = %q, want s-3", latest.ID)
		}
	})
}

func TestStore_FindSessionByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.UpsertSession(ctx, domain.Session{ID: "abcdef-123"}); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, err := s.FindSessionByPrefix(ctx, "abcd")
	if err != nil {
		t.Fatalf("FindSessionByPrefix: %v", err)
	}
	if got.ID != "abcdef-123" {
		t.Errorf("ID = %q", got.ID)
	}
	if _, err := s.FindSessionByPrefix(ctx, "abc"); err == nil {
		t.Error("expected error for short prefix")
	}
	if _, err := s.FindSessionByPrefix(ctx, "zzzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_SessionTitle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if got := s.SessionTitle(ctx, "missing"); got != "Unknown" {
		t.Errorf("SessionTitle = %q, want Unknown", got)
	}
	_ = s.UpsertSession(ctx, domain.Session{ID: "s1", Title: "Planning"})
	if got := s.SessionTitle(ctx, "s1"); got != "Planning" {
		t.Errorf("SessionTitle = %q", got)
	}
}

func TestStore_AppendMessage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	user := domain.NewMessage(domain.KindUser, "you", "look at these")
	user.Attachments = []string{"a.go", "b.go"}
	ai := domain.NewMessage(domain.KindAI, "Bob", "done")
	ai.Backend = "local"
	ai.ModelName = "m-small"
	shell := domain.NewMessage(domain.KindShellOutput, "ls", "a.go\nb.go")

	for _, m := range []domain.Message{user, ai, shell} {
		if err := s.AppendMessage(ctx, "s1", m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := s.GetMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != user.ID || got[0].Kind != domain.KindUser || len(got[0].Attachments) != 2 {
		t.Errorf("unexpected first message: %+v", got[0])
	}
	if got[1].Backend != "local" || got[1].ModelName != "m-small" || got[1].Author != "Bob" {
		t.Errorf("unexpected second message: %+v", got[1])
	}
	if got[2].Kind != domain.KindShellOutput || got[2].Text != "a.go\nb.go" {
		t.Errorf("unexpected third message: %+v", got[2])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to round-trip")
	}

	// The session row is created on first append.
	if _, err := s.GetSession(ctx, "s1"); err != nil {
		t.Errorf("GetSession after append: %v", err)
	}
	n, _ := s.MessageCount(ctx, "s1")
	if n != 3 {
		t.Errorf("MessageCount = %d, want 3", n)
	}
}

func TestStore_AppendMessage_rejectsUnknownKind(t *testing.T) {
	s := testStore(t)
	m := domain.NewMessage("bogus", "x", "y")
	if err := s.AppendMessage(context.Background(), "s1", m); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestStore_MessageSequencing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if err := s.AppendMessage(ctx, "s1", domain.SystemMessage(fmt.Sprintf("m%02d", i))); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	got, _ := s.GetMessages(ctx, "s1")
	for i, m := range got {
		if want := fmt.Sprintf("m%02d", i); m.Text != want {
			t.Fatalf("message %d = %q, want %q", i, m.Text, want)
		}
	}
}

func TestStore_AppendMessage_sameIDOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := domain.SystemMessage("once")
	for i := 0; i < 2; i++ {
		if err := s.AppendMessage(ctx, "s1", m); err != nil {
			t.Fatalf("AppendMessage #%d: %v", i, err)
		}
	}
	if n, _ := s.MessageCount(ctx, "s1"); n != 1 {
		t.Errorf("MessageCount = %d, want 1", n)
	}
}

func TestStore_GetMessages_empty(t *testing.T) {
	s := testStore(t)
	got, err := s.GetMessages(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestStore_SetMessageClosed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	m := domain.NewMessage(domain.KindUser, "you", "a very long paste")
	_ = s.AppendMessage(ctx, "s1", m)

	if err := s.SetMessageClosed(ctx, m.ID, true); err != nil {
		t.Fatalf("SetMessageClosed: %v", err)
	}
	got, _ := s.GetMessages(ctx, "s1")
	if !got[0].Closed {
		t.Error("expected closed")
	}
	if got[0].Text != "a very long paste" {
		t.Errorf("text changed: %q", got[0].Text)
	}
	if err := s.SetMessageClosed(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_SessionWithHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_ = s.UpsertSession(ctx, domain.Session{ID: "s1", Title: "Review"})
	_ = s.AppendMessage(ctx, "s1", domain.SystemMessage("hello"))

	h, err := s.SessionWithHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionWithHistory: %v", err)
	}
	if h.Session.Title != "Review" || len(h.Messages) != 1 {
		t.Errorf("unexpected history %+v", h)
	}
}

func TestStore_DeleteSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_ = s.AppendMessage(ctx, "s1", domain.SystemMessage("x"))
	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	got, _ := s.GetMessages(ctx, "s1")
	if len(got) != 0 {
		t.Errorf("messages should cascade, got %d", len(got))
	}
}

func TestStore_migrate_idempotent(t *testing.T) {
	s := testStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOpen_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convo.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	_ = s.AppendMessage(ctx, "s1", domain.SystemMessage("persisted"))
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, _ := s.GetMessages(ctx, "s1")
	if len(got) != 1 || got[0].Text != "persisted" {
		t.Errorf("got %+v", got)
	}
}
