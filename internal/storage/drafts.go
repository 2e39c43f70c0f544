// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/bookshelf-tui/internal/model"
)

// draftSchema creates the drafts table.
const draftSchema = `
CREATE TABLE IF NOT EXISTS drafts (
	chat_id    TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Draft is unsent chat input.
type Draft struct {
	ChatID    model.ID
	Content   string
	UpdatedAt time.Time
}

// DraftStore persists unsent chat input per chat.
type DraftStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenDraftStore opens (creating if needed) the draft database at path.
func OpenDraftStore(path string) (*DraftStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

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
	if _, err := db.Exec(draftSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DraftStore{db: db, now: time.Now}, nil
}

// Save stores content for chatID. Blank content deletes the draft.
func (s *DraftStore) Save(ctx context.Context, chatID model.ID, content string) error {
	if strings.TrimSpace(content) == "" {
		return s.Delete(ctx, chatID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (chat_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		string(chatID), content, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Load returns the draft for chatID, or "" when there is none.
func (s *DraftStore) Load(ctx context.Context, chatID model.ID) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM drafts WHERE chat_id = ?`, string(chatID)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	return content, nil
}

// Delete removes the draft for chatID.
func (s *DraftStore) Delete(ctx context.Context, chatID model.ID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE chat_id = ?`, string(chatID)); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// List returns all drafts, most recently updated first.
func (s *DraftStore) List(ctx context.Context) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, content, updated_at FROM drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var (
			d       Draft
			id      string
			updated int64
		)
		if err := rows.Scan(&id, &d.Content, &updated); err != nil {
			return nil, err
		}
		d.ChatID = model.ID(id)
		d.UpdatedAt = time.UnixMilli(updated)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *DraftStore) Close() error {
	return s.db.Close()
}
