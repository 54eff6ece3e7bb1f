// Package offline keeps the last committed board on local disk so a board
// can start while the remote store is unreachable.
package offline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcdev12/courtside/go/internal/cloudsync"
	_ "modernc.org/sqlite"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS board_snapshots (
    key        TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    revision   INTEGER NOT NULL,
    saved_at   INTEGER NOT NULL
)`

// Cache persists board snapshots in SQLite.
type Cache struct {
	sqlDB *sql.DB
	key   string
}

// Open opens (or creates) the cache file
func Open(path, key string) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if strings.TrimSpace(key) == "" {
		key = cloudsync.DefaultDocumentKey
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(createSnapshotsTable); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create board_snapshots: %w", err)
	}
	return &Cache{sqlDB: sqlDB, key: key}, nil
}

// Close closes the SQLite handle.
func (c *Cache) Close() error {
	if c == nil || c.sqlDB == nil {
		return nil
	}
	return c.sqlDB.Close()
}

// Save stores snap, replacing what was there
func (c *Cache) Save(ctx context.Context, snap cloudsync.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := cloudsync.EncodeMatches(snap.Matches)
	if err != nil {
		return err
	}
	_, err = c.sqlDB.ExecContext(ctx, `
        INSERT INTO board_snapshots (key, payload, revision, saved_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            payload = excluded.payload,
            revision = excluded.revision,
            saved_at = excluded.saved_at
    `, c.key, string(payload), int64(snap.Revision), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the cached snapshot. A missing or unreadable entry yields a
// snapshot that is not Present.
func (c *Cache) Load(ctx context.Context) (cloudsync.Snapshot, error) {
	var (
		payload  string
		revision int64
	)
	err := c.sqlDB.QueryRowContext(ctx,
		`SELECT payload, revision FROM board_snapshots WHERE key = ?`, c.key,
	).Scan(&payload, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return cloudsync.Snapshot{}, nil
	}
	if err != nil {
		return cloudsync.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	matches, ok := cloudsync.DecodeMatches([]byte(payload))
	if !ok {
		return cloudsync.Snapshot{Revision: uint64(revision)}, nil
	}
	return cloudsync.Snapshot{Matches: matches, Revision: uint64(revision), Present: true}, nil
}
