// Package queue is the durable local store for transactions captured while
// the PocketBizz server is unreachable.
//
// Records survive restarts, are read back in creation order, and are only ever
// marked as synced; nothing here deletes a record.
package queue

import (
	"database/sql"
	_ "embed"
	"log/slog"

	"github.com/pocketbizz/pocketsync/internal/clock"
	"github.com/pocketbizz/pocketsync/internal/ledger"
	"github.com/pocketbizz/pocketsync/internal/notify"
	"github.com/pocketbizz/pocketsync/internal/sqlitedb"
)

//go:embed schema.sql
var schemaDDL string

// Schema is the queue database layout. Version 1 is the initial layout.
var Schema = sqlitedb.Schema{
	DDL: schemaDDL,
	Migrations: []sqlitedb.Migration{
		{Version: 1, Apply: func(*sql.DB) error { return nil }},
	},
}

// Store wraps the SQLite queue database.
//
// Thread-safety: Store is safe for concurrent use. All statements go through a
// single connection, so concurrent enqueues are serialised by database/sql.
type Store struct {
	db        *sql.DB
	clock     clock.Clock
	keys      ledger.KeyGenerator
	validator *ledger.Validator
	bus       *notify.Bus
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the source of created_at/synced_at timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithKeyGenerator sets the idempotency key generator.
func WithKeyGenerator(g ledger.KeyGenerator) Option {
	return func(s *Store) { s.keys = g }
}

// WithValidator sets the draft validator.
func WithValidator(v *ledger.Validator) Option {
	return func(s *Store) { s.validator = v }
}

// WithBus sets the bus that receives a stored event for each enqueue.
func WithBus(b *notify.Bus) Option {
	return func(s *Store) { s.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates or opens the queue database at path.
//
// Safe to call repeatedly on the same file: existing records are kept and the
// schema is only created when absent. Any failure is a STORAGE_UNAVAILABLE error.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		clock:  clock.System{},
		keys:   ledger.UUIDv7Keys{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.validator == nil {
		v, err := ledger.NewValidator()
		if err != nil {
			return nil, unavailable("compile validator", err)
		}
		s.validator = v
	}

	db, err := sqlitedb.Open(path, Schema)
	if err != nil {
		return nil, unavailable("open queue database", err)
	}
	s.db = db

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for inspection in tests.
func (s *Store) DB() *sql.DB {
	return s.db
}
