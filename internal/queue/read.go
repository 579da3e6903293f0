package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pocketbizz/pocketsync/internal/ledger"
)

const selectColumns = `
	SELECT id, idempotency_key, type, amount, description, channel, category,
	       created_at, synced, synced_at
	FROM transactions
`

// ListUnsynced returns every record still waiting for the server, oldest first.
// Ties on created_at are broken by id.
//
// Returns an empty slice (not nil) when the queue is drained.
func (s *Store) ListUnsynced(ctx context.Context) ([]ledger.QueuedTransaction, error) {
	return s.query(ctx, selectColumns+`
		WHERE synced = 0
		ORDER BY created_at ASC, id ASC
	`)
}

// ListOptions filters List.
type ListOptions struct {
	// IncludeSynced also returns records the server has confirmed.
	IncludeSynced bool

	// Limit caps the number of records; 0 means no limit.
	Limit int
}

// List returns records in creation order.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]ledger.QueuedTransaction, error) {
	q := selectColumns
	if !opts.IncludeSynced {
		q += ` WHERE synced = 0`
	}
	q += ` ORDER BY created_at ASC, id ASC`

	args := []any{}
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	return s.query(ctx, q, args...)
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (ledger.QueuedTransaction, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.QueuedTransaction{}, &Error{Code: ErrCodeNotFound, Message: "no such transaction", ID: id}
	}
	if err != nil {
		return ledger.QueuedTransaction{}, err
	}
	return rec, nil
}

// Stats summarises the queue.
type Stats struct {
	Total          int        `json:"total"`
	Unsynced       int        `json:"unsynced"`
	OldestUnsynced *time.Time `json:"oldest_unsynced,omitempty"`
}

// Stats counts records and reports the age of the oldest pending one.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st     Stats
		oldest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
		       MIN(CASE WHEN synced = 0 THEN created_at END)
		FROM transactions
	`).Scan(&st.Total, &st.Unsynced, &oldest)
	if err != nil {
		return Stats{}, unavailable("query stats", err)
	}
	if oldest.Valid {
		t := time.Unix(0, oldest.Int64).UTC()
		st.OldestUnsynced = &t
	}
	return st, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]ledger.QueuedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("query transactions", err)
	}
	defer rows.Close()

	records := []ledger.QueuedTransaction{}
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate transactions", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (ledger.QueuedTransaction, error) {
	var (
		rec       ledger.QueuedTransaction
		typ       string
		amount    string
		channel   string
		createdAt int64
		synced    int
		syncedAt  sql.NullInt64
	)
	err := row.Scan(
		&rec.ID,
		&rec.IdempotencyKey,
		&typ,
		&amount,
		&rec.Description,
		&channel,
		&rec.Category,
		&createdAt,
		&synced,
		&syncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, unavailable("scan transaction", err)
	}

	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return rec, fmt.Errorf("scan transaction %d: parse amount %q: %w", rec.ID, amount, err)
	}
	rec.Type = ledger.Type(typ)
	rec.Channel = ledger.Channel(channel)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.Synced = synced == 1
	if syncedAt.Valid {
		t := time.Unix(0, syncedAt.Int64).UTC()
		rec.SyncedAt = &t
	}
	return rec, nil
}
