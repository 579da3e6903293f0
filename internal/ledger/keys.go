package ledger

import "github.com/google/uuid"

// KeyGenerator produces the idempotency key attached to each queued record.
// The server can use it to drop a replay it has already applied.
type KeyGenerator interface {
	Generate() string
}

// UUIDv7Keys generates time-sortable UUIDv7 keys.
//
// Thread-safety: UUIDv7Keys is stateless and safe for concurrent use.
type UUIDv7Keys struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Keys) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
