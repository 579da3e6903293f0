// Package sqlitedb opens the SQLite files pocketsync keeps on local disk.
//
// Both the transaction queue and the worker's response cache live in their own
// database file. Each file is opened with the same connection discipline:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - a single open connection, so writes are serialised by database/sql
//
// Schema creation is idempotent and migrations are tracked with
// PRAGMA user_version.
package sqlitedb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Migration upgrades a database from Version-1 to Version.
type Migration struct {
	Version int
	Apply   func(db *sql.DB) error
}

// Schema describes the tables a caller needs.
type Schema struct {
	// DDL is executed on every open and must only use IF NOT EXISTS statements.
	DDL string

	// Migrations are applied in order for versions above the stored user_version.
	Migrations []Migration
}

// CurrentVersion returns the highest migration version, or 0 without migrations.
func (s Schema) CurrentVersion() int {
	v := 0
	for _, m := range s.Migrations {
		if m.Version > v {
			v = m.Version
		}
	}
	return v
}

// Open creates or opens a SQLite database at the given path and applies the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Schema DDL runs on every open; migrations run only for versions above the
// stored user_version, which is then set to schema.CurrentVersion().
//
// This function is idempotent - safe to call multiple times on the same file.
// The parent directory must exist.
func Open(path string, schema Schema) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(db *sql.DB, schema Schema) error {
	if schema.DDL != "" {
		if _, err := db.Exec(schema.DDL); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if err := runMigrations(db, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
// A failed migration leaves user_version at its previous value.
func runMigrations(db *sql.DB, schema Schema) error {
	version, err := UserVersion(db)
	if err != nil {
		return err
	}

	for _, m := range schema.Migrations {
		if m.Version <= version {
			continue
		}
		if err := m.Apply(db); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.Version, err)
		}
		version = m.Version
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schema.CurrentVersion())); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// UserVersion reports the schema version recorded in the database file.
func UserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// Pragma returns the current value of a pragma as text.
func Pragma(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return "", fmt.Errorf("query %s: %w", name, err)
	}
	return value, nil
}
