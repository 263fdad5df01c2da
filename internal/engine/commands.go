package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/command"
	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/store"
)

var errNoStore = errors.New("command store not configured")

// LoadCommands rebuilds the registry from the YAML library file and the
// store. Definitions in the store win over file definitions of the same
// name; file definitions take their favorite flag and order from the
// store's flag rows. On error the previous snapshot stays in place.
func (e *Engine) LoadCommands(ctx context.Context) error {
	defs, err := e.collectCommands(ctx)
	if err != nil {
		return err
	}
	snap, err := e.registry.Replace(defs)
	if err != nil {
		return fmt.Errorf("load commands: %w", err)
	}
	e.log.Info("commands loaded", zap.Int("count", snap.Len()), zap.Uint64("version", snap.Version()))
	return nil
}

func (e *Engine) collectCommands(ctx context.Context) ([]domain.CommandDefinition, error) {
	byName := make(map[string]domain.CommandDefinition)
	var order []string
	add := func(d domain.CommandDefinition) {
		if _, ok := byName[d.Name]; !ok {
			order = append(order, d.Name)
		}
		byName[d.Name] = d
	}

	var flags map[string]store.CommandFlags
	if e.store != nil {
		var err error
		if flags, err = e.store.ListCommandFlags(ctx); err != nil {
			return nil, fmt.Errorf("list command flags: %w", err)
		}
	}
	if path := e.Prefs().CommandsFilePath(); path != "" {
		fileDefs, err := command.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, d := range fileDefs {
			if f, ok := flags[d.Name]; ok {
				d.IsFavorite = f.IsFavorite
				d.SortOrder = f.SortOrder
			}
			add(d)
		}
	}
	if e.store != nil {
		stored, err := e.store.ListCommands(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stored commands: %w", err)
		}
		for _, d := range stored {
			add(d)
		}
	}

	defs := make([]domain.CommandDefinition, 0, len(order))
	for _, name := range order {
		defs = append(defs, byName[name])
	}
	return defs, nil
}

// checkWith reports whether the current table with defs upserted still
// forms a valid snapshot: unique names, no reserved names, no cycles.
func (e *Engine) checkWith(defs ...domain.CommandDefinition) error {
	current := e.registry.Snapshot().Commands()
	byName := make(map[string]int, len(current))
	for i, d := range current {
		byName[d.Name] = i
	}
	for _, d := range defs {
		if i, ok := byName[d.Name]; ok {
			current[i] = d
			continue
		}
		byName[d.Name] = len(current)
		current = append(current, d)
	}
	_, err := command.NewRegistry().Replace(current)
	return err
}

// SaveCommand validates def against the current table, persists it and
// reloads the registry.
func (e *Engine) SaveCommand(ctx context.Context, def domain.CommandDefinition) error {
	if e.store == nil {
		return errNoStore
	}
	if err := e.checkWith(def); err != nil {
		return err
	}
	if err := e.store.SaveCommand(ctx, def); err != nil {
		return err
	}
	return e.reload(ctx)
}

// RemoveCommand deletes a stored command and reloads the registry.
func (e *Engine) RemoveCommand(ctx context.Context, name string) error {
	if e.store == nil {
		return errNoStore
	}
	if err := e.store.RemoveCommand(ctx, name); err != nil {
		return err
	}
	return e.reload(ctx)
}

// ToggleFavorite flips the favorite flag of a command and reloads the
// registry. It returns the new state.
func (e *Engine) ToggleFavorite(ctx context.Context, name string) (bool, error) {
	if e.store == nil {
		return false, errNoStore
	}
	def, ok := e.registry.Snapshot().Lookup(name)
	if !ok {
		return false, &domain.UnknownCommandError{Name: name}
	}
	fav := !def.IsFavorite
	if err := e.saveFlags(ctx, name, store.CommandFlags{IsFavorite: fav, SortOrder: def.SortOrder}); err != nil {
		return false, err
	}
	return fav, e.reload(ctx)
}

// SetSortOrder moves a command in the display order and reloads the
// registry.
func (e *Engine) SetSortOrder(ctx context.Context, name string, order int) error {
	if e.store == nil {
		return errNoStore
	}
	def, ok := e.registry.Snapshot().Lookup(name)
	if !ok {
		return &domain.UnknownCommandError{Name: name}
	}
	if err := e.saveFlags(ctx, name, store.CommandFlags{IsFavorite: def.IsFavorite, SortOrder: order}); err != nil {
		return err
	}
	return e.reload(ctx)
}

// saveFlags records flags on the stored definition of name, or in a flag row
// when the definition only lives in the library file. The file stays the
// source of a file-only command, so later edits to it still apply.
func (e *Engine) saveFlags(ctx context.Context, name string, flags store.CommandFlags) error {
	_, err := e.store.GetCommand(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.store.SaveCommandFlags(ctx, name, flags)
	case err != nil:
		return err
	}
	if err := e.store.ToggleFavorite(ctx, name, flags.IsFavorite); err != nil {
		return err
	}
	return e.store.SetSortOrder(ctx, name, flags.SortOrder)
}

// ImportCommands reads a YAML library and saves every definition in it.
// Nothing is saved when any definition would leave the table invalid.
func (e *Engine) ImportCommands(ctx context.Context, path string) (int, error) {
	if e.store == nil {
		return 0, errNoStore
	}
	defs, err := command.LoadFile(path)
	if err != nil {
		return 0, err
	}
	if err := e.checkWith(defs...); err != nil {
		return 0, err
	}
	for _, d := range defs {
		if err := e.store.SaveCommand(ctx, d); err != nil {
			return 0, fmt.Errorf("import %s: %w", d.Name, err)
		}
	}
	return len(defs), e.reload(ctx)
}

// ExportCommands writes the current table as a YAML library.
func (e *Engine) ExportCommands(path string) (int, error) {
	defs := e.registry.Snapshot().Commands()
	if err := command.SaveFile(path, defs); err != nil {
		return 0, err
	}
	return len(defs), nil
}

func (e *Engine) reload(ctx context.Context) error {
	err := e.LoadCommands(ctx)
	e.changed()
	return err
}

// CompletionNames returns the names the input line can complete to:
// built-in directives first, then the user-defined commands.
func (e *Engine) CompletionNames() []string {
	names := make([]string, 0, len(domain.Directives)+e.registry.Snapshot().Len())
	for _, d := range domain.Directives {
		names = append(names, d.Name)
	}
	return append(names, e.registry.Snapshot().Names()...)
}
