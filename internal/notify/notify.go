// Package notify carries user-facing notices from the offline core to whatever
// presents them (log lines, the status API, a browser banner).
//
// The core never renders anything itself: it publishes typed events and the
// presentation layer subscribes.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies a notice.
type Kind string

const (
	// KindStored: a transaction was saved to the local queue.
	KindStored Kind = "stored"
	// KindOnline: connectivity came back.
	KindOnline Kind = "online"
	// KindOffline: connectivity was lost.
	KindOffline Kind = "offline"
	// KindSyncing: a drain started with Count pending records.
	KindSyncing Kind = "syncing"
	// KindSynced: Count records were confirmed by the server.
	KindSynced Kind = "synced"
	// KindSyncFailed: a drain finished without confirming any record.
	KindSyncFailed Kind = "sync_failed"
	// KindSyncPartial: Count of Attempted records were confirmed, the rest stay queued.
	KindSyncPartial Kind = "sync_partial"
	// KindDataChanged: server-side data changed and views should refresh.
	KindDataChanged Kind = "data_changed"
	// KindNotification: a push notification should be displayed.
	KindNotification Kind = "notification"
)

// Event is a single notice.
type Event struct {
	Kind      Kind      `json:"kind"`
	Count     int       `json:"count,omitempty"`
	Attempted int       `json:"attempted,omitempty"`
	RecordID  int64     `json:"record_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	URL       string    `json:"url,omitempty"`
	At        time.Time `json:"at"`
}

// Text renders the notice the way the PocketBizz UI words it.
func (e Event) Text() string {
	switch e.Kind {
	case KindStored:
		return "Data disimpan secara tempatan. Akan sync bila online."
	case KindOnline:
		return "Online"
	case KindOffline:
		return "Offline Mode"
	case KindSyncing:
		return fmt.Sprintf("Mensync %d transaksi offline...", e.Count)
	case KindSynced:
		return fmt.Sprintf("%d transaksi berjaya disync!", e.Count)
	case KindSyncFailed:
		return "Sync gagal. Cuba lagi kemudian."
	case KindSyncPartial:
		return fmt.Sprintf("%d daripada %d transaksi disync. Selebihnya akan dicuba semula.", e.Count, e.Attempted)
	case KindDataChanged:
		return "Data dikemas kini."
	case KindNotification:
		if e.Body != "" {
			return e.Title + ": " + e.Body
		}
		return e.Title
	default:
		return string(e.Kind)
	}
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id int
	h  Handler
}

// Bus fans events out to subscribers in subscription order.
//
// Publish is synchronous. A panicking subscriber is recovered and logged so one
// broken view cannot stop the others from being notified.
//
// Thread-safety: Bus is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report subscriber panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithNow overrides the timestamp source for events published without At.
func WithNow(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, h: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s.h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notify subscriber panicked", "kind", e.Kind, "panic", r)
		}
	}()
	h(e)
}
