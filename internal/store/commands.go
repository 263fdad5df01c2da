package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/batalabs/convo/internal/command"
	"github.com/batalabs/convo/internal/domain"
)

// ---------------------------------------------------------------------------
// Command library
// ---------------------------------------------------------------------------

// SaveCommand inserts or replaces a user-defined command. The favorite flag
// and sort order are kept in their own columns and always win over the
// copies inside the stored definition.
func (s *Store) SaveCommand(ctx context.Context, def domain.CommandDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commands (name, kind, definition, is_favorite, sort_order, updated_at)
		 VALUES (?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			definition = excluded.definition,
			is_favorite = excluded.is_favorite,
			sort_order = excluded.sort_order,
			updated_at = datetime('now')`,
		def.Name, string(def.Kind), string(body), boolInt(def.IsFavorite), def.SortOrder)
	return err
}

// RemoveCommand deletes a command by name.
func (s *Store) RemoveCommand(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM commands WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return expectOne(res, "command "+name)
}

// ToggleFavorite sets the favorite flag of a command.
func (s *Store) ToggleFavorite(ctx context.Context, name string, favorite bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET is_favorite = ?, updated_at = datetime('now') WHERE name = ?`,
		boolInt(favorite), name)
	if err != nil {
		return err
	}
	return expectOne(res, "command "+name)
}

// SetSortOrder sets the display position of a command.
func (s *Store) SetSortOrder(ctx context.Context, name string, order int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET sort_order = ?, updated_at = datetime('now') WHERE name = ?`,
		order, name)
	if err != nil {
		return err
	}
	return expectOne(res, "command "+name)
}

// CommandFlags are the per-user display flags of a command whose definition
// lives in the library file rather than the store.
type CommandFlags struct {
	IsFavorite bool
	SortOrder  int
}

// SaveCommandFlags records the flags of a file-defined command.
func (s *Store) SaveCommandFlags(ctx context.Context, name string, flags CommandFlags) error {
	if name == "" {
		return fmt.Errorf("save command flags: empty name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_flags (name, is_favorite, sort_order, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(name) DO UPDATE SET
			is_favorite = excluded.is_favorite,
			sort_order = excluded.sort_order,
			updated_at = datetime('now')`,
		name, boolInt(flags.IsFavorite), flags.SortOrder)
	return err
}

// ListCommandFlags returns the recorded flags keyed by command name.
func (s *Store) ListCommandFlags(ctx context.Context) (map[string]CommandFlags, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, is_favorite, sort_order FROM command_flags`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]CommandFlags)
	for rows.Next() {
		var (
			name  string
			fav   int
			order int
		)
		if err := rows.Scan(&name, &fav, &order); err != nil {
			return nil, err
		}
		out[name] = CommandFlags{IsFavorite: fav != 0, SortOrder: order}
	}
	return out, rows.Err()
}

// GetCommand returns one command by name.
func (s *Store) GetCommand(ctx context.Context, name string) (domain.CommandDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT definition, is_favorite, sort_order FROM commands WHERE name = ?`, name)
	def, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return def, fmt.Errorf("command %s: %w", name, ErrNotFound)
	}
	return def, err
}

// ListCommands returns every stored command, favorites first, then by sort
// order, then by name.
func (s *Store) ListCommands(ctx context.Context) ([]domain.CommandDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT definition, is_favorite, sort_order FROM commands`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []domain.CommandDefinition
	for rows.Next() {
		def, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	command.SortCommands(defs)
	return defs, nil
}

func scanCommand(row scanner) (domain.CommandDefinition, error) {
	var (
		def   domain.CommandDefinition
		body  string
		fav   int
		order int
	)
	if err := row.Scan(&body, &fav, &order); err != nil {
		return def, err
	}
	if err := json.Unmarshal([]byte(body), &def); err != nil {
		return def, fmt.Errorf("decoding command: %w", err)
	}
	def.IsFavorite = fav != 0
	def.SortOrder = order
	return def, nil
}
