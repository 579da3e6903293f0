// Package syncer replays queued transactions to the PocketBizz server once it
// is reachable again.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pocketbizz/pocketsync/internal/ledger"
	"github.com/pocketbizz/pocketsync/internal/notify"
)

// DefaultReplayTimeout bounds a single replay.
const DefaultReplayTimeout = 15 * time.Second

// Queue is the part of the queue store the engine needs.
type Queue interface {
	ListUnsynced(ctx context.Context) ([]ledger.QueuedTransaction, error)
	MarkSynced(ctx context.Context, id int64) error
}

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	IsOnline() bool
}

// SkipReason says why a drain did no work.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipOffline   SkipReason = "offline"
	SkipCoalesced SkipReason = "coalesced"
	SkipEmpty     SkipReason = "empty"
)

// Result summarises a drain.
type Result struct {
	Skipped   SkipReason `json:"skipped,omitempty"`
	Passes    int        `json:"passes"`
	Attempted int        `json:"attempted"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

// Engine drains the queue.
//
// Thread-safety: Drain may be called from any goroutine. At most one drain runs
// at a time; a call that arrives while one is running returns immediately and
// makes the running drain do one more pass when it finishes.
type Engine struct {
	queue    Queue
	replayer Replayer
	net      Connectivity
	bus      *notify.Bus
	logger   *slog.Logger
	timeout  time.Duration

	running atomic.Bool
	rerun   atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBus publishes drain progress on b.
func WithBus(b *notify.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithReplayTimeout bounds each replay.
func WithReplayTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// New creates an engine.
func New(q Queue, r Replayer, net Connectivity, opts ...Option) *Engine {
	e := &Engine{
		queue:    q,
		replayer: r,
		net:      net,
		logger:   slog.Default(),
		timeout:  DefaultReplayTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Drain replays every unsynced record in creation order.
//
// Offline it returns immediately without touching the store. A replay failure
// never aborts the drain: the record stays queued and the next one is tried.
// The returned error is only non-nil when the store itself fails or ctx ends.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	if !e.net.IsOnline() {
		e.logger.Debug("drain skipped: offline")
		return Result{Skipped: SkipOffline}, nil
	}
	if !e.running.CompareAndSwap(false, true) {
		e.rerun.Store(true)
		e.logger.Debug("drain coalesced into running drain")
		return Result{Skipped: SkipCoalesced}, nil
	}

	var total Result
	for {
		e.rerun.Store(false)
		r, err := e.pass(ctx)
		total.Passes++
		total.Attempted += r.Attempted
		total.Succeeded += r.Succeeded
		total.Failed += r.Failed
		e.running.Store(false)

		if err != nil {
			return total, err
		}
		if !e.rerun.Load() || !e.net.IsOnline() {
			break
		}
		if !e.running.CompareAndSwap(false, true) {
			break
		}
	}

	if total.Attempted == 0 {
		total.Skipped = SkipEmpty
	}
	return total, nil
}

// Running reports whether a drain is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

func (e *Engine) pass(ctx context.Context) (Result, error) {
	records, err := e.queue.ListUnsynced(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("drain: %w", err)
	}
	if len(records) == 0 {
		e.logger.Debug("no offline transactions to sync")
		return Result{}, nil
	}

	e.logger.Info("syncing offline transactions", "count", len(records))
	e.bus.Publish(notify.Event{Kind: notify.KindSyncing, Count: len(records)})

	var r Result
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		r.Attempted++
		if e.replay(ctx, rec) {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}

	if err := ctx.Err(); err != nil {
		e.logger.Info("drain interrupted", "attempted", r.Attempted, "succeeded", r.Succeeded, "error", err)
		return r, err
	}
	e.publishOutcome(r)
	return r, nil
}

// replay sends rec and marks it synced; it reports whether both succeeded.
func (e *Engine) replay(ctx context.Context, rec ledger.QueuedTransaction) bool {
	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	err := e.replayer.Replay(rctx, rec)
	cancel()
	if err != nil {
		e.logger.Warn("replay failed", "id", rec.ID, "error", err)
		return false
	}

	if err := e.queue.MarkSynced(ctx, rec.ID); err != nil {
		// The server has the record; the idempotency key lets it drop the
		// duplicate the next drain will send.
		e.logger.Error("mark synced failed", "id", rec.ID, "error", err)
		return false
	}

	e.logger.Info("replay succeeded", "id", rec.ID)
	return true
}

func (e *Engine) publishOutcome(r Result) {
	if r.Succeeded == 0 {
		e.bus.Publish(notify.Event{Kind: notify.KindSyncFailed, Attempted: r.Attempted})
		return
	}
	e.bus.Publish(notify.Event{Kind: notify.KindSynced, Count: r.Succeeded})
	if r.Succeeded < r.Attempted {
		e.bus.Publish(notify.Event{Kind: notify.KindSyncPartial, Count: r.Succeeded, Attempted: r.Attempted})
	}
	e.bus.Publish(notify.Event{Kind: notify.KindDataChanged})
}
