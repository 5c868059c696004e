// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    name TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    message_count INTEGER NOT NULL DEFAULT 0,
    preview TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL, -- Unix nanoseconds
    updated_at INTEGER NOT NULL, -- Unix nanoseconds
    data TEXT NOT NULL           -- JSON-encoded Conversation
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore persists conversations in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, name string, maxTokens int) (*Conversation, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM sessions WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return NewConversation(name, maxTokens), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", name, err)
	}
	return decode([]byte(data), maxTokens)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, conv *Conversation) error {
	data, err := encode(conv)
	if err != nil {
		return err
	}
	meta := metaOf(conv)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (name, id, model, message_count, preview, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			id = excluded.id,
			model = excluded.model,
			message_count = excluded.message_count,
			preview = excluded.preview,
			updated_at = excluded.updated_at,
			data = excluded.data`,
		meta.Name, meta.ID, meta.Model, meta.MessageCount, meta.Preview,
		meta.CreatedAt.UnixNano(), meta.UpdatedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("save session %q: %w", conv.Name, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, id, model, message_count, preview, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var m Meta
		var created, updated int64
		if err := rows.Scan(&m.Name, &m.ID, &m.Model, &m.MessageCount, &m.Preview, &created, &updated); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		m.CreatedAt = time.Unix(0, created)
		m.UpdatedAt = time.Unix(0, updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete session %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// ENCODING
// =============================================================================

func encode(conv *Conversation) ([]byte, error) {
	data, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("encode session %q: %w", conv.Name, err)
	}
	return data, nil
}

func decode(data []byte, maxTokens int) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if conv.WorkingFiles == nil {
		conv.WorkingFiles = make(map[string]string)
	}
	conv.MaxTokens = maxTokens
	conv.recount()
	return &conv, nil
}
