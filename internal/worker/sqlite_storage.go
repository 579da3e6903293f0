package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbizz/pocketsync/internal/sqlitedb"
)

const cacheDDL = `
CREATE TABLE IF NOT EXISTS caches (
    name TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
    cache_name TEXT NOT NULL REFERENCES caches(name) ON DELETE CASCADE,
    key TEXT NOT NULL,
    status INTEGER NOT NULL,
    header TEXT NOT NULL,
    body BLOB NOT NULL,
    stored_at INTEGER NOT NULL,
    PRIMARY KEY (cache_name, key)
);
`

// SQLiteStorage keeps cache generations in their own SQLite file.
//
// Thread-safety: safe for concurrent use; statements are serialised on one
// connection.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStorage opens or creates the cache database at path.
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sqlitedb.Open(path, sqlitedb.Schema{DDL: cacheDDL})
	if err != nil {
		return nil, fmt.Errorf("open cache storage: %w", err)
	}
	return &SQLiteStorage{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Open implements Storage.
func (s *SQLiteStorage) Open(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO caches (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("open cache %q: %w", name, err)
	}
	return nil
}

// Names implements Storage.
func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM caches ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	return scanStrings(rows)
}

// Delete implements Storage.
func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete cache %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cache %q: %w", name, err)
	}
	return n > 0, nil
}

// Match implements Storage.
func (s *SQLiteStorage) Match(ctx context.Context, name, key string) (Entry, bool, error) {
	var (
		e        = Entry{Key: key}
		header   string
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT status, header, body, stored_at
		FROM cache_entries
		WHERE cache_name = ? AND key = ?
	`, name, key).Scan(&e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("match %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return Entry{}, false, fmt.Errorf("match %q: decode header: %w", key, err)
	}
	e.StoredAt = time.Unix(0, storedAt).UTC()
	return e, true, nil
}

// Put implements Storage.
func (s *SQLiteStorage) Put(ctx context.Context, name string, e Entry) error {
	header := e.Header
	if header == nil {
		header = http.Header{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("put %q: encode header: %w", e.Key, err)
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %q: %w", e.Key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO caches (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, s.now().UnixNano()); err != nil {
		return fmt.Errorf("put %q: %w", e.Key, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_name, key, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_name, key) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at
	`, name, e.Key, e.Status, string(headerJSON), body, e.StoredAt.UnixNano()); err != nil {
		return fmt.Errorf("put %q: %w", e.Key, err)
	}
	return tx.Commit()
}

// Keys implements Storage.
func (s *SQLiteStorage) Keys(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM cache_entries WHERE cache_name = ? ORDER BY key ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return scanStrings(rows)
}

// Close implements Storage.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
