package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"scribe-ai/internal/domain"
)

// ThreadStore persists threads and their messages in SQLite.
type ThreadStore struct {
	db *sql.DB
}

// NewThreadStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewThreadStore(dbPath string) (*ThreadStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open thread db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate thread db: %w", err)
	}
	return &ThreadStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			role       TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			tool_calls TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *ThreadStore) Close() error {
	return s.db.Close()
}

// CreateThread inserts a new empty thread and returns it.
func (s *ThreadStore) CreateThread(_ context.Context, title string) (*domain.Thread, error) {
	now := time.Now().UTC()
	t := &domain.Thread{
		ID:        newULID(now),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(
		"INSERT INTO threads (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		t.ID, t.Title, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	return t, nil
}

// GetThread returns a thread with its messages in append order.
func (s *ThreadStore) GetThread(ctx context.Context, id string) (*domain.Thread, error) {
	row := s.db.QueryRow(
		"SELECT id, title, created_at, updated_at FROM threads WHERE id = ?", id,
	)
	t, err := scanThread(row)
	if err != nil {
		return nil, err
	}
	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Messages = msgs
	return t, nil
}

// ListThreads returns all threads, most recently updated first, without
// their messages.
func (s *ThreadStore) ListThreads(_ context.Context) ([]*domain.Thread, error) {
	rows, err := s.db.Query(
		"SELECT id, title, created_at, updated_at FROM threads ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []*domain.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// DeleteThread removes a thread and all its messages.
func (s *ThreadStore) DeleteThread(_ context.Context, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("ThreadStore.DeleteThread", domain.ErrThreadNotFound, id)
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE thread_id = ?", id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return tx.Commit()
}

// AppendMessages appends messages to a thread in order and bumps its
// updated_at. The whole batch lands in one transaction.
func (s *ThreadStore) AppendMessages(_ context.Context, threadID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(1) FROM threads WHERE id = ?", threadID).Scan(&exists); err != nil {
		return fmt.Errorf("check thread: %w", err)
	}
	if exists == 0 {
		return domain.NewDomainError("ThreadStore.AppendMessages", domain.ErrThreadNotFound, threadID)
	}

	var next int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?", threadID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	now := time.Now().UTC()
	for i, msg := range msgs {
		calls := msg.ToolCalls
		if calls == nil {
			calls = []domain.ToolCall{}
		}
		callsJSON, err := json.Marshal(calls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = now
		}
		_, err = tx.Exec(
			"INSERT INTO messages (id, thread_id, seq, role, name, content, tool_calls, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			newULID(now), threadID, next+i, msg.Role, msg.Name, msg.Content,
			string(callsJSON), ts.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if _, err := tx.Exec(
		"UPDATE threads SET updated_at = ? WHERE id = ?",
		now.Format(time.RFC3339Nano), threadID,
	); err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns a thread's messages in append order.
func (s *ThreadStore) ListMessages(_ context.Context, threadID string) ([]domain.Message, error) {
	rows, err := s.db.Query(
		"SELECT role, name, content, tool_calls, created_at FROM messages WHERE thread_id = ? ORDER BY seq",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var role, name, content, callsJSON, createdAt string
		if err := rows.Scan(&role, &name, &content, &callsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg := domain.Message{
			Role:      role,
			Name:      name,
			Content:   content,
			Timestamp: parseTime(createdAt),
		}
		if callsJSON != "" && callsJSON != "[]" && callsJSON != "null" {
			if err := json.Unmarshal([]byte(callsJSON), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (*domain.Thread, error) {
	var t domain.Thread
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Title, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewDomainError("ThreadStore.Get", domain.ErrThreadNotFound, "")
		}
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// newULID generates a sortable unique ID. The shared monotonic source keeps
// IDs distinct even when a batch lands within one millisecond.
func newULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
