package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-irc/internal/store"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sender     TEXT NOT NULL,
	target     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_target ON messages(target, id DESC);

CREATE TABLE IF NOT EXISTS channels (
	name       TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	set_by     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, applySchema)
}

// NewWithSetup opens the database and runs setup before the first ping.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LogMessage appends a message.
func (s *SQLiteStore) LogMessage(ctx context.Context, msg store.Message) error {
	query := `
		INSERT INTO messages (sender, target, kind, body)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.Sender, msg.Target, string(msg.Kind), msg.Body); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages for target, newest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, target string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, sender, target, kind, body, created_at
		FROM messages
		WHERE target = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, target, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var (
			msg  store.Message
			kind string
		)
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Target, &kind, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Kind = store.MessageKind(kind)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// UpdateChannel upserts the topic of a channel.
func (s *SQLiteStore) UpdateChannel(ctx context.Context, name, topic, setBy string) error {
	query := `
		INSERT INTO channels (name, topic, set_by, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			topic = excluded.topic,
			set_by = excluded.set_by,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, name, topic, setBy); err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

// GetChannel returns the last recorded topic of a channel.
func (s *SQLiteStore) GetChannel(ctx context.Context, name string) (*store.ChannelRecord, error) {
	query := `
		SELECT name, topic, set_by, updated_at
		FROM channels
		WHERE name = ?
	`
	var rec store.ChannelRecord
	err := s.db.QueryRowContext(ctx, query, name).Scan(&rec.Name, &rec.Topic, &rec.SetBy, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}
	return &rec, nil
}
