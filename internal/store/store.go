package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/batalabs/convo/internal/config"
	"github.com/batalabs/convo/internal/domain"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session or command does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database holding session history and the user
// command library.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database in the convo data directory.
func OpenStore() (*Store, error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return Open(filepath.Join(dir, "convo.db"))
}

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s, err := NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens a private in-memory database. Nothing outlives Close.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	s, err := NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB creates a Store from an existing *sql.DB and runs migrations.
// This is useful for testing with an in-memory database.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_path TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT 'New Session',
			mode TEXT NOT NULL DEFAULT '',
			message_count INTEGER DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			attachments TEXT NOT NULL DEFAULT '',
			backend TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			closed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			sequence INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS commands (
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			definition TEXT NOT NULL,
			is_favorite INTEGER NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS command_flags (
			name TEXT PRIMARY KEY,
			is_favorite INTEGER NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`); err != nil {
		return err
	}

	// Add missing columns to existing DBs before creating indexes.
	for _, q := range []string{
		`ALTER TABLE sessions ADD COLUMN mode TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE messages ADD COLUMN closed INTEGER NOT NULL DEFAULT 0`,
	} {
		if _, err := s.db.Exec(q); err != nil {
			// expected: column already exists
		}
	}

	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, sequence);
	`)
	return err
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

const sessionColumns = `id, project_path, title, mode, created_at, updated_at`

// UpsertSession records the metadata of a backend session. Sessions are
// owned by the backend; the local row mirrors them for offline history.
func (s *Store) UpsertSession(ctx context.Context, sess domain.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("upsert session: empty id")
	}
	if sess.Title == "" {
		sess.Title = "New Session"
	}
	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_path, title, mode, created_at, updated_at)
		 VALUES (?, ?, ?, ?, datetime(?), datetime('now'))
		 ON CONFLICT(id) DO UPDATE SET
			project_path = excluded.project_path,
			title = excluded.title,
			mode = excluded.mode,
			updated_at = datetime('now')`,
		sess.ID, sess.ProjectPath, sess.Title, sess.Mode,
		created.UTC().Format(time.RFC3339))
	return err
}

// GetSession retrieves a session by its full ID.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// LatestSession returns the most recently updated session for a project path.
func (s *Store) LatestSession(ctx context.Context, projectPath string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE project_path = ? ORDER BY updated_at DESC, rowid DESC LIMIT 1`,
		projectPath)
	return scanSession(row)
}

// ListSessions returns the most recent sessions for a project path, up to
// limit. An empty project path lists every session.
func (s *Store) ListSessions(ctx context.Context, projectPath string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE ? = '' OR project_path = ?
		 ORDER BY updated_at DESC, rowid DESC LIMIT ?`,
		projectPath, projectPath, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// FindSessionByPrefix matches a session by ID prefix (at least 4 chars).
func (s *Store) FindSessionByPrefix(ctx context.Context, prefix string) (*domain.Session, error) {
	if len(prefix) < 4 {
		return nil, fmt.Errorf("session prefix %q too short", prefix)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id LIKE ? || '%' ORDER BY updated_at DESC LIMIT 1`,
		prefix)
	return scanSession(row)
}

// SessionTitle returns the title for a session, or "Unknown" if not found.
func (s *Store) SessionTitle(ctx context.Context, id string) string {
	var title string
	err := s.db.QueryRowContext(ctx, `SELECT title FROM sessions WHERE id = ?`, id).Scan(&title)
	if err != nil {
		return "Unknown"
	}
	return title
}

// DeleteSession removes a session and its messages (via ON DELETE CASCADE).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// AppendMessage stores one turn at the end of a session's history. A
// session row is created on first use so streamed turns for sessions this
// client has never opened are still kept. A message whose ID is already
// stored is skipped.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("append message: unknown kind %q", msg.Kind)
	}
	if msg.ID == "" {
		msg.ID = domain.NewUUID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	var attachments string
	if len(msg.Attachments) > 0 {
		b, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("marshaling attachments: %w", err)
		}
		attachments = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE id = ?`, msg.ID).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id) VALUES (?)`, sessionID); err != nil {
		return err
	}
	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM messages WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return err
	}
	seq++
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, kind, author, content, attachments, backend, model, closed, created_at, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, string(msg.Kind), msg.Author, msg.Text, attachments,
		msg.Backend, msg.ModelName, boolInt(msg.Closed),
		msg.Timestamp.UTC().Format(time.RFC3339Nano), seq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET message_count = ?, updated_at = datetime('now') WHERE id = ?`,
		seq, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMessages returns all messages for a session, ordered by sequence.
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, author, content, attachments, backend, model, closed, created_at
		 FROM messages WHERE session_id = ? ORDER BY sequence`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m           domain.Message
			kind        string
			attachments string
			closed      int
			created     string
		)
		if err := rows.Scan(&m.ID, &kind, &m.Author, &m.Text, &attachments,
			&m.Backend, &m.ModelName, &closed, &created); err != nil {
			return nil, err
		}
		m.Kind = domain.MessageKind(kind)
		m.Closed = closed != 0
		if attachments != "" {
			if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
				return nil, fmt.Errorf("message %s attachments: %w", m.ID, err)
			}
		}
		if t, err := parseAnyTime(created); err == nil {
			m.Timestamp = t
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SetMessageClosed persists the presentation toggle of a user message.
func (s *Store) SetMessageClosed(ctx context.Context, messageID string, closed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET closed = ? WHERE id = ?`, boolInt(closed), messageID)
	if err != nil {
		return err
	}
	return expectOne(res, "message "+messageID)
}

// MessageCount returns the number of stored messages for a session.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// SessionWithHistory loads a session and its transcript.
func (s *Store) SessionWithHistory(ctx context.Context, id string) (domain.SessionWithHistory, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return domain.SessionWithHistory{}, err
	}
	msgs, err := s.GetMessages(ctx, id)
	if err != nil {
		return domain.SessionWithHistory{}, err
	}
	return domain.SessionWithHistory{Session: *sess, Messages: msgs}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var sess domain.Session
	var createdStr, updatedStr string
	err := row.Scan(&sess.ID, &sess.ProjectPath, &sess.Title, &sess.Mode, &createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if t, err := parseAnyTime(createdStr); err == nil {
		sess.CreatedAt = t
	}
	if t, err := parseAnyTime(updatedStr); err == nil {
		sess.UpdatedAt = t
	}
	return &sess, nil
}

func parseAnyTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
