package worker

import (
	"context"
	"net/http"
	"time"
)

// Entry is one stored response.
type Entry struct {
	// Key is METHOD + " " + absolute URL without fragment.
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Storage holds named cache generations.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// Open creates the named generation if it does not exist.
	Open(ctx context.Context, name string) error

	// Names lists every generation, sorted.
	Names(ctx context.Context) ([]string, error)

	// Delete removes a generation and its entries, reporting whether it existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Match looks up key in the named generation.
	Match(ctx context.Context, name, key string) (Entry, bool, error)

	// Put stores e in the named generation, creating it if needed.
	Put(ctx context.Context, name string, e Entry) error

	// Keys lists the keys stored in a generation, sorted.
	Keys(ctx context.Context, name string) ([]string, error)

	Close() error
}
