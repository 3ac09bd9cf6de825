package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	identifier TEXT PRIMARY KEY,
	expires    INTEGER NOT NULL,
	data       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_expires_idx ON entries (expires);
CREATE TABLE IF NOT EXISTS entry_tags (
	tag        TEXT NOT NULL,
	identifier TEXT NOT NULL,
	PRIMARY KEY (tag, identifier)
);
CREATE INDEX IF NOT EXISTS entry_tags_identifier_idx ON entry_tags (identifier);
`

// SQLite is an embedded persistent backend.
// Expiry times are stored as unix milliseconds, 0 meaning no expiry.
type SQLite struct {
	db         *sql.DB
	writeMutex sync.Mutex
	now        func() time.Time
}

// NewSQLite opens (or creates) the database at path.
// If path is empty, a private in-memory database is used.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: in-memory databases are per connection and writes are serialized anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite wal: %w", err)
	}

	return &SQLite{
		db:  db,
		now: time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the stored bytes for id.
func (s *SQLite) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var expires int64
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT expires, data FROM entries WHERE identifier = ?", id,
	).Scan(&expires, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get: %w", err)
	}
	if expires != 0 && s.now().UnixMilli() >= expires {
		return nil, false, nil
	}
	return data, true, nil
}

// Set stores data under id, replacing any previous entry and its tags.
func (s *SQLite) Set(ctx context.Context, id string, data []byte, tags []string, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixMilli()
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entry_tags WHERE identifier = ?", id); err != nil {
		return fmt.Errorf("sqlite delete tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (identifier, expires, data) VALUES (?, ?, ?)",
		id, expires, data,
	); err != nil {
		return fmt.Errorf("sqlite insert entry: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entry_tags (tag, identifier) VALUES (?, ?)", tag, id,
		); err != nil {
			return fmt.Errorf("sqlite insert tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Has reports whether an unexpired entry exists for id.
func (s *SQLite) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM entries WHERE identifier = ? AND (expires = 0 OR expires > ?)",
		id, s.now().UnixMilli(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite has: %w", err)
	}
	return true, nil
}

// Remove deletes the entry for id and its tags.
func (s *SQLite) Remove(ctx context.Context, id string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entry_tags WHERE identifier = ?", id); err != nil {
		return fmt.Errorf("sqlite delete tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE identifier = ?", id); err != nil {
		return fmt.Errorf("sqlite delete entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// FindIdentifiersByTag returns the sorted identifiers of unexpired entries carrying tag.
func (s *SQLite) FindIdentifiersByTag(ctx context.Context, tag string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT t.identifier
		FROM entry_tags t JOIN entries e ON e.identifier = t.identifier
		WHERE t.tag = ? AND (e.expires = 0 OR e.expires > ?)
		ORDER BY t.identifier`,
		tag, s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite find by tag: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}
	return ids, nil
}

// PurgeExpired removes all expired entries and returns how many were removed.
func (s *SQLite) PurgeExpired(ctx context.Context) (int, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_tags WHERE identifier IN
		(SELECT identifier FROM entries WHERE expires != 0 AND expires <= ?)`, now); err != nil {
		return 0, fmt.Errorf("sqlite purge tags: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE expires != 0 AND expires <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("sqlite purge entries: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %w", err)
	}
	return int(purged), nil
}
