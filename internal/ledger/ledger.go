// ABOUTME: Local append-only transcript of exchanges with the agent, stored in SQLite
// ABOUTME: Records outbound messages, replies, and error replies per session

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Direction says which way an entry travelled.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionError    Direction = "error"
)

// ErrInvalidEntry is returned for entries missing a session or direction.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// Entry is one recorded message.
type Entry struct {
	ID          string
	SessionID   string
	Direction   Direction
	Role        string
	Text        string
	Attachments []string // display names only
	CreatedAt   time.Time
}

// Store is a SQLite-backed transcript.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the transcript database at path, creating parent
// directories as needed. Pass nil logger for default.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ledger")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("ledger opened", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transcript (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id    TEXT NOT NULL UNIQUE,
			session_id  TEXT NOT NULL,
			direction   TEXT NOT NULL,
			role        TEXT NOT NULL,
			text        TEXT NOT NULL,
			attachments TEXT,
			created_at  TEXT NOT NULL,

			CHECK (direction IN ('outbound', 'inbound', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends an entry. ID and CreatedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.SessionID == "" || e.Direction == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	var attachments *string
	if len(e.Attachments) > 0 {
		data, err := json.Marshal(e.Attachments)
		if err != nil {
			return fmt.Errorf("encoding attachments: %w", err)
		}
		str := string(data)
		attachments = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript (entry_id, session_id, direction, role, text, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.SessionID,
		string(e.Direction),
		e.Role,
		e.Text,
		attachments,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	s.logger.Debug("recorded entry", "session_id", e.SessionID, "direction", e.Direction)
	return nil
}

// ListBySession returns a session's entries oldest first. A positive limit
// keeps only the most recent limit entries.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	query := `
		SELECT entry_id, session_id, direction, role, text, attachments, created_at
		FROM transcript
		WHERE session_id = ?
		ORDER BY seq DESC
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e           Entry
			direction   string
			attachments sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &direction, &e.Role, &e.Text, &attachments, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Direction = Direction(direction)
		if attachments.Valid {
			if err := json.Unmarshal([]byte(attachments.String), &e.Attachments); err != nil {
				return nil, fmt.Errorf("decoding attachments: %w", err)
			}
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	slices.Reverse(entries)
	return entries, nil
}

// DeleteSession purges every entry for a session and reports how many were removed.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transcript WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted entries: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
