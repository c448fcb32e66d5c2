// Package history keeps a local mirror of fetched transcripts so session
// listings, stats, and full-text search work offline. The server remains the
// source of truth; the cache is refreshed after every finished turn.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yunseo-dev/esmchat/internal/chat"
)

// SessionMeta is a lightweight session row for listings.
type SessionMeta struct {
	SessionID string
	Title     string
	UpdatedAt time.Time
	Messages  int
}

// Cache is a sqlite-backed transcript mirror.
type Cache struct {
	db   *sql.DB
	path string
}

// Open creates or opens the cache database and initializes the schema.
func Open(ctx context.Context, dbPath string) (*Cache, error) {
	// WAL mode and a busy timeout; sqlite handles one writer at a time.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history cache: %w", err)
	}

	c := &Cache{db: db, path: dbPath}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return c, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id  TEXT NOT NULL,
		message_id  TEXT NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		PRIMARY KEY (session_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// ReplaceSession swaps the cached transcript for one session in a single
// transaction. The title is the first user message, which matches what the
// portal's history list shows.
func (c *Cache) ReplaceSession(ctx context.Context, sessionID string, msgs []chat.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear cached session: %w", err)
	}

	title := ""
	for _, m := range msgs {
		if m.Role == chat.RoleUser && m.Content != "" {
			title = m.Content
			break
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, title, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		sessionID, title, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to upsert session row: %w", err)
	}

	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, message_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, m.ID, string(m.Role), m.Content, m.Timestamp.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert cached message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache transaction: %w", err)
	}
	return nil
}

// Sessions lists cached sessions, newest first.
func (c *Cache) Sessions(ctx context.Context) ([]SessionMeta, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.session_id, s.title, s.updated_at, COUNT(m.message_id)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionMeta
	for rows.Next() {
		var meta SessionMeta
		var updated int64
		if err := rows.Scan(&meta.SessionID, &meta.Title, &updated, &meta.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		meta.UpdatedAt = time.UnixMilli(updated)
		out = append(out, meta)
	}
	return out, rows.Err()
}

// Messages returns the cached transcript of one session in creation order.
func (c *Cache) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT message_id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var role string
		var created int64
		if err := rows.Scan(&m.ID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = chat.Role(role)
		m.Timestamp = time.UnixMilli(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Size returns the on-disk size of the cache database in bytes.
func (c *Cache) Size() (int64, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat history cache: %w", err)
	}
	return info.Size(), nil
}
