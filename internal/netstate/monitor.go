// Package netstate tracks whether the PocketBizz server is reachable.
//
// A Monitor holds the current value and runs listeners on transitions only.
// Connectivity signals are pushed into it by a Source; nothing polls the
// Monitor itself.
package netstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketbizz/pocketsync/internal/notify"
)

// DefaultOnlineBannerTTL is how long the "online" banner stays up.
const DefaultOnlineBannerTTL = 3 * time.Second

// Monitor owns the online flag.
//
// Thread-safety: Monitor is safe for concurrent use. Listeners run on the
// goroutine that called Set, after the lock is released; a listener that needs
// to do slow work should start its own goroutine.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	onOnline  []func()
	onOffline []func()

	indicator *Indicator
	bus       *notify.Bus
	logger    *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithBus publishes online/offline events on b.
func WithBus(b *notify.Bus) Option {
	return func(m *Monitor) { m.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithIndicator replaces the default indicator.
func WithIndicator(i *Indicator) Option {
	return func(m *Monitor) { m.indicator = i }
}

// New creates a monitor with the given initial value. No listener runs for the
// initial value. When starting offline the indicator shows the offline banner.
func New(initialOnline bool, opts ...Option) *Monitor {
	m := &Monitor{
		online: initialOnline,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.indicator == nil {
		m.indicator = NewIndicator(DefaultOnlineBannerTTL)
	}
	if !initialOnline {
		m.indicator.ShowOffline()
	}
	return m
}

// IsOnline reports the current value.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Indicator returns the banner state holder.
func (m *Monitor) Indicator() *Indicator {
	return m.indicator
}

// OnOnline registers fn to run on every offline-to-online transition.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnOffline registers fn to run on every online-to-offline transition.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// Set records a platform connectivity signal and reports whether it changed
// the value. Repeating the current value does nothing.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	var listeners []func()
	if online {
		listeners = append(listeners, m.onOnline...)
	} else {
		listeners = append(listeners, m.onOffline...)
	}
	m.mu.Unlock()

	if online {
		m.logger.Info("connection restored")
		m.indicator.ShowOnline()
		m.bus.Publish(notify.Event{Kind: notify.KindOnline})
	} else {
		m.logger.Warn("connection lost")
		m.indicator.ShowOffline()
		m.bus.Publish(notify.Event{Kind: notify.KindOffline})
	}

	for _, fn := range listeners {
		m.run(fn)
	}
	return true
}

func (m *Monitor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("connectivity listener panicked", "panic", r)
		}
	}()
	fn()
}

// Follow seeds the monitor from src.Check and then applies every signal src
// pushes until ctx is cancelled.
func (m *Monitor) Follow(ctx context.Context, src Source) error {
	online, err := src.Check(ctx)
	if err != nil {
		m.logger.Warn("initial connectivity check failed", "error", err)
	} else {
		m.Set(online)
	}
	return src.Run(ctx, func(online bool) { m.Set(online) })
}
