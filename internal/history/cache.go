// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

var (
	ErrCacheClosed = errors.New("history cache closed")
	ErrInvalidPath = errors.New("invalid cache path")
)

// Cache is the on-disk copy of the chat list.
type Cache struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// OpenCache opens (or creates) the cache database at path. ":memory:" opens a
// private in-memory database.
func OpenCache(path string) (*Cache, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history cache: %w", err)
	}

	// SQLite only supports one writer at a time. One connection also keeps
	// ":memory:" databases from splitting across the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
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
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// Path returns the database path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database. It is safe to call more than once.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

func (c *Cache) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	return nil
}

// =============================================================================
// CHATS
// =============================================================================

const upsertChat = `
INSERT INTO chats (id, title, created_at, updated_at, message_count)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    updated_at = excluded.updated_at,
    message_count = excluded.message_count`

// Upsert inserts or updates one entry.
func (c *Cache) Upsert(ctx context.Context, e Entry) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, upsertChat,
		e.ID.String(), e.Title, unixNano(e.Created), unixNano(e.Updated), e.MessageCount)
	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", e.ID, err)
	}
	return nil
}

// ReplaceAll swaps the cached list for entries in one transaction.
func (c *Cache) ReplaceAll(ctx context.Context, entries []Entry) error {
	if err := c.check(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chats"); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertChat)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID.String(), e.Title, unixNano(e.Created), unixNano(e.Updated), e.MessageCount); err != nil {
			return fmt.Errorf("insert chat %s: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE metadata SET value = ? WHERE key = 'last_refresh'",
		strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return tx.Commit()
}

// Delete removes one entry.
func (c *Cache) Delete(ctx context.Context, id protocol.ChatID) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id.String())
	return err
}

// List returns every cached entry, most recently updated first.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at, message_count
		FROM chats
		ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry            Entry
			id               string
			created, updated int64
		)
		if err := rows.Scan(&id, &entry.Title, &created, &updated, &entry.MessageCount); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		entry.ID = protocol.ChatID(id)
		entry.Created = fromUnixNano(created)
		entry.Updated = fromUnixNano(updated)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// METADATA
// =============================================================================

// SetActive records the active chat id.
func (c *Cache) SetActive(ctx context.Context, id protocol.ChatID) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx,
		"UPDATE metadata SET value = ? WHERE key = 'active_chat'", id.String())
	return err
}

// Active returns the recorded active chat id.
func (c *Cache) Active(ctx context.Context) (protocol.ChatID, error) {
	v, err := c.meta(ctx, "active_chat")
	return protocol.ChatID(v), err
}

// LastRefresh returns when the list was last replaced from the server.
func (c *Cache) LastRefresh(ctx context.Context) (time.Time, error) {
	v, err := c.meta(ctx, "last_refresh")
	if err != nil {
		return time.Time{}, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last_refresh: %w", err)
	}
	return fromUnixNano(n), nil
}

func (c *Cache) meta(ctx context.Context, key string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	var v string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
