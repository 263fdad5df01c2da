package store

import (
	"context"
	"errors"
	"testing"

	"github.com/batalabs/convo/internal/domain"
)

func TestStore_SaveCommand(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	def := domain.CommandDefinition{
		Name:    "review",
		Kind:    domain.CommandAction,
		Content: "Review {{transcript_recent}}",
		Action:  &domain.ActionConfig{Persona: "Reviewer", Model: "m-large", TranscriptWindow: 5},
	}
	if err := s.SaveCommand(ctx, def); err != nil {
		t.Fatalf("SaveCommand: %v", err)
	}
	got, err := s.GetCommand(ctx, "review")
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if got.Action == nil || got.Action.Persona != "Reviewer" || got.Action.TranscriptWindow != 5 {
		t.Errorf("action config did not round-trip: %+v", got.Action)
	}

	def.Content = "Review again"
	if err := s.SaveCommand(ctx, def); err != nil {
		t.Fatalf("SaveCommand overwrite: %v", err)
	}
	got, _ = s.GetCommand(ctx, "review")
	if got.Content != "Review again" {
		t.Errorf("Content = %q", got.Content)
	}

	if err := s.SaveCommand(ctx, domain.CommandDefinition{Name: "bad", Kind: domain.CommandShell}); err == nil {
		t.Error("expected validation error for shell command without content")
	}
}

func TestStore_RemoveCommand(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_ = s.SaveCommand(ctx, domain.CommandDefinition{Name: "ls", Kind: domain.CommandShell, Content: "ls"})

	if err := s.RemoveCommand(ctx, "ls"); err != nil {
		t.Fatalf("RemoveCommand: %v", err)
	}
	if _, err := s.GetCommand(ctx, "ls"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.RemoveCommand(ctx, "ls"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListCommands_order(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, name := range []string{"c", "b", "a", "d"} {
		if err := s.SaveCommand(ctx, domain.CommandDefinition{Name: name, Kind: domain.CommandShell, Content: name}); err != nil {
			t.Fatalf("SaveCommand: %v", err)
		}
	}
	if err := s.ToggleFavorite(ctx, "d", true); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if err := s.SetSortOrder(ctx, "c", -1); err != nil {
		t.Fatalf("SetSortOrder: %v", err)
	}

	defs, err := s.ListCommands(ctx)
	if err != nil {
		t.Fatalf("ListCommands: %v", err)
	}
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	want := []string{"d", "c", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	if !defs[0].IsFavorite {
		t.Error("favorite flag should come from its column")
	}

	if err := s.ToggleFavorite(ctx, "d", false); err != nil {
		t.Fatalf("ToggleFavorite off: %v", err)
	}
	got, _ := s.GetCommand(ctx, "d")
	if got.IsFavorite {
		t.Error("expected favorite cleared")
	}
}

func TestStore_CommandMutations_missing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.ToggleFavorite(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleFavorite err = %v", err)
	}
	if err := s.SetSortOrder(ctx, "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetSortOrder err = %v", err)
	}
}

func TestStore_CommandFlags(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	flags, err := s.ListCommandFlags(ctx)
	if err != nil {
		t.Fatalf("ListCommandFlags: %v", err)
	}
	if len(flags) != 0 {
		t.Fatalf("flags = %v, want none", flags)
	}

	if err := s.SaveCommandFlags(ctx, "ls", CommandFlags{IsFavorite: true}); err != nil {
		t.Fatalf("SaveCommandFlags: %v", err)
	}
	if err := s.SaveCommandFlags(ctx, "ls", CommandFlags{IsFavorite: true, SortOrder: -2}); err != nil {
		t.Fatalf("SaveCommandFlags update: %v", err)
	}
	if err := s.SaveCommandFlags(ctx, "", CommandFlags{}); err == nil {
		t.Error("expected error for empty name")
	}

	flags, _ = s.ListCommandFlags(ctx)
	if got := flags["ls"]; !got.IsFavorite || got.SortOrder != -2 {
		t.Errorf("flags[ls] = %+v", got)
	}
	// Flags never create a stored definition.
	if _, err := s.GetCommand(ctx, "ls"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCommand err = %v, want ErrNotFound", err)
	}
}
