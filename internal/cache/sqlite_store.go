package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ohler55/ojg/oj"
	"github.com/overseasops/claimgrid/api"
	_ "modernc.org/sqlite"
)

// Store is the persistent cache tier: one sqlite table of serialized query
// results. It outlives the process, so a relaunch within the persistent
// TTL repopulates the memory tier without touching the network.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the cache database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", path, err)
	}
	// Single writer goroutine plus occasional reader promotions.
	db.SetMaxOpenConns(2)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() // ignore error
		return nil, fmt.Errorf("set WAL mode on cache db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key         TEXT PRIMARY KEY,
			rows        TEXT NOT NULL,
			total       INTEGER NOT NULL,
			ts          INTEGER NOT NULL,
			last_access INTEGER NOT NULL
		);
	`); err != nil {
		_ = db.Close() // ignore error
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &Store{db: db}, nil
}

// Put upserts one entry.
func (s *Store) Put(e *Entry) error {
	rows, err := oj.Marshal(e.Rows)
	if err != nil {
		return fmt.Errorf("encode cache rows: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO cache_entries (key, rows, total, ts, last_access)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			rows = excluded.rows,
			total = excluded.total,
			ts = excluded.ts,
			last_access = excluded.last_access
	`, e.Key, string(rows), e.TotalCount, e.Timestamp.UnixMilli(), e.LastAccessed.UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry %s: %w", e.Key, err)
	}
	return nil
}

// Get loads one entry. A missing key returns (nil, nil).
func (s *Store) Get(key string) (*Entry, error) {
	var rowsJSON string
	var total int
	var ts, lastAccess int64
	err := s.db.QueryRow(
		"SELECT rows, total, ts, last_access FROM cache_entries WHERE key = ?", key,
	).Scan(&rowsJSON, &total, &ts, &lastAccess)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry %s: %w", key, err)
	}
	var rows []api.ClaimRecord
	if err := oj.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &Entry{
		Key:          key,
		Rows:         rows,
		TotalCount:   total,
		Timestamp:    time.UnixMilli(ts),
		LastAccessed: time.UnixMilli(lastAccess),
	}, nil
}

// Touch bumps an entry's last_access stamp.
func (s *Store) Touch(key string, at time.Time) error {
	_, err := s.db.Exec("UPDATE cache_entries SET last_access = ? WHERE key = ?", at.UnixMilli(), key)
	if err != nil {
		return fmt.Errorf("touch cache entry %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM cache_entries")
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes the given keys.
func (s *Store) Delete(keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", k); err != nil {
			return fmt.Errorf("delete cache entry %s: %w", k, err)
		}
	}
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// PurgeExpired drops entries older than ttl as of now.
func (s *Store) PurgeExpired(ttl time.Duration, now time.Time) error {
	cutoff := now.Add(-ttl).UnixMilli()
	if _, err := s.db.Exec("DELETE FROM cache_entries WHERE ts < ?", cutoff); err != nil {
		return fmt.Errorf("purge expired cache entries: %w", err)
	}
	return nil
}

// EvictLRU removes least-recently-accessed entries until at most cap remain.
func (s *Store) EvictLRU(cap int) error {
	_, err := s.db.Exec(`
		DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries
			ORDER BY last_access DESC, key
			LIMIT -1 OFFSET ?
		)
	`, cap)
	if err != nil {
		return fmt.Errorf("evict cache entries: %w", err)
	}
	return nil
}

// Clear drops every entry.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("clear cache store: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
