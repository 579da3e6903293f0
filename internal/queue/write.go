package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbizz/pocketsync/internal/ledger"
	"github.com/pocketbizz/pocketsync/internal/notify"
)

// Enqueue validates d and appends it to the queue as an unsynced record.
//
// The id is assigned by SQLite and the idempotency key is generated here; the
// stored record is returned and a stored event is published.
func (s *Store) Enqueue(ctx context.Context, d ledger.Draft) (ledger.QueuedTransaction, error) {
	d = d.Normalize()
	if err := s.validator.Validate(d); err != nil {
		return ledger.QueuedTransaction{}, fmt.Errorf("enqueue: %w", err)
	}

	rec := ledger.QueuedTransaction{
		IdempotencyKey: s.keys.Generate(),
		Type:           d.Type,
		Amount:         d.Amount,
		Description:    d.Description,
		Channel:        d.Channel,
		Category:       d.Category,
		CreatedAt:      s.clock.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(idempotency_key, type, amount, description, channel, category, created_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`,
		rec.IdempotencyKey,
		string(rec.Type),
		rec.Amount.String(),
		rec.Description,
		string(rec.Channel),
		rec.Category,
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return ledger.QueuedTransaction{}, unavailable("insert transaction", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.QueuedTransaction{}, unavailable("read inserted id", err)
	}
	rec.ID = id

	s.logger.Info("transaction queued", "id", rec.ID, "type", rec.Type, "amount", rec.Amount.String())
	s.bus.Publish(notify.Event{Kind: notify.KindStored, RecordID: rec.ID, At: rec.CreatedAt})

	return rec, nil
}

// MarkSynced records that the server accepted the record with the given id.
//
// The update is guarded by synced = 0, so an already-synced record keeps its
// original synced_at. An unknown id is logged and ignored.
func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET synced = 1, synced_at = ?
		WHERE id = ? AND synced = 0
	`, s.clock.Now().UTC().UnixNano(), id)
	if err != nil {
		return unavailable("mark synced", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("mark synced", err)
	}
	if n > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("mark synced: unknown transaction", "id", id)
		return nil
	}
	if err != nil {
		return unavailable("mark synced", err)
	}
	return nil
}
