// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search maintains a SQLite full-text index over conversation
// titles and message text.
package search

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrDatabaseError = errors.New("database error")
	ErrClosed        = errors.New("index closed")
)

// DefaultMaxResults caps Search when the caller passes no limit.
const DefaultMaxResults = 50

// =============================================================================
// SCHEMA
// =============================================================================

// Schema backs the index: one row per conversation plus an FTS5 table with
// one entry per title and per message body.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    updated_at INTEGER NOT NULL  -- UnixNano of the indexed snapshot
);

CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    body,
    conv_id UNINDEXED,
    kind UNINDEXED,
    tokenize='porter unicode61'
);
`

// EntryKind says where a match landed.
type EntryKind string

const (
	EntryTitle   EntryKind = "title"
	EntryMessage EntryKind = "message"
)

// =============================================================================
// INDEX
// =============================================================================

// Index is a conversation search index over a SQLite database.
type Index struct {
	db *sql.DB
	mu sync.RWMutex
}

// DefaultPath returns the on-disk index location, beside the state blobs.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".forgechat", "state", "search-v1.db"), nil
}

// Open opens the index at path, creating the file and schema as needed.
func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	return open(path)
}

// OpenMemory opens a throwaway in-memory index.
func OpenMemory() (*Index, error) {
	return open(":memory:")
}

func open(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// also keeps an in-memory database on one handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

// =============================================================================
// WRITING
// =============================================================================

// Normalise prepares text for indexing and querying. NFC folding makes
// composed and decomposed forms of the same character match.
func Normalise(s string) string {
	return norm.NFC.String(s)
}

// IndexConversation replaces the indexed entries for one conversation.
func (ix *Index) IndexConversation(conv *model.Conversation) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return ErrClosed
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if err := indexConversationTx(tx, conv); err != nil {
		return err
	}
	return tx.Commit()
}

func indexConversationTx(tx *sql.Tx, conv *model.Conversation) error {
	if _, err := tx.Exec("DELETE FROM entries_fts WHERE conv_id = ?", conv.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO conversations (id, title, updated_at) VALUES (?, ?, ?)",
		conv.ID, conv.Title, conv.UpdatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO entries_fts (body, conv_id, kind) VALUES (?, ?, ?)",
		Normalise(conv.Title), conv.ID, string(EntryTitle),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	for _, msg := range conv.Messages {
		text := msg.DisplayText()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO entries_fts (body, conv_id, kind) VALUES (?, ?, ?)",
			Normalise(text), conv.ID, string(EntryMessage),
		); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}
	return nil
}

// RemoveConversation drops a conversation's entries.
func (ix *Index) RemoveConversation(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return ErrClosed
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if err := removeConversationTx(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func removeConversationTx(tx *sql.Tx, id string) error {
	if _, err := tx.Exec("DELETE FROM entries_fts WHERE conv_id = ?", id); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if _, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Sync reconciles the index with a snapshot: conversations whose updatedAt
// moved are reindexed, ids absent from the snapshot are removed, the rest
// are left alone.
func (ix *Index) Sync(convs []*model.Conversation) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return ErrClosed
	}

	indexed := make(map[string]int64)
	rows, err := ix.db.Query("SELECT id, updated_at FROM conversations")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	for rows.Next() {
		var id string
		var at int64
		if err := rows.Scan(&id, &at); err == nil {
			indexed[id] = at
		}
	}
	rows.Close()

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	live := make(map[string]bool, len(convs))
	for _, conv := range convs {
		live[conv.ID] = true
		if at, ok := indexed[conv.ID]; ok && at == conv.UpdatedAt.UnixNano() {
			continue
		}
		if err := indexConversationTx(tx, conv); err != nil {
			return err
		}
	}
	for id := range indexed {
		if !live[id] {
			if err := removeConversationTx(tx, id); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// =============================================================================
// QUERYING
// =============================================================================

// Result is one search hit: the conversation it lives in and a snippet of
// the matching entry.
type Result struct {
	ConversationID string
	Title          string
	Snippet        string
	Kind           EntryKind
}

// Search runs a full-text query. Multiple terms AND together; the last term
// matches by prefix, so queries work while still being typed. Results come
// back best match first, at most limit of them (DefaultMaxResults when
// limit <= 0). An empty query returns nothing.
func (ix *Index) Search(query string, limit int) ([]Result, error) {
	match := buildMatchQuery(Normalise(query))
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.db == nil {
		return nil, ErrClosed
	}

	rows, err := ix.db.Query(`
		SELECT e.conv_id, c.title, snippet(entries_fts, 0, '', '', '…', 12), e.kind
		FROM entries_fts e
		JOIN conversations c ON c.id = e.conv_id
		WHERE entries_fts MATCH ?
		ORDER BY e.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var kind string
		if err := rows.Scan(&r.ConversationID, &r.Title, &r.Snippet, &kind); err != nil {
			continue
		}
		r.Kind = EntryKind(kind)
		results = append(results, r)
	}
	return results, rows.Err()
}

// buildMatchQuery turns free text into an FTS5 MATCH expression. Each term
// is quoted so user input cannot inject operators; the final term gets a
// prefix star.
func buildMatchQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	quoted[len(quoted)-1] += "*"
	return strings.Join(quoted, " ")
}
