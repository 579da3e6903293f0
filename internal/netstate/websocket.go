package netstate

import (
	"context"
	"log/slog"
	"math"
	"time"

	"nhooyr.io/websocket"
)

// WebSocketSource holds a connection to the upstream realtime endpoint.
// While connected the server is considered reachable; a dropped connection or
// a missed heartbeat reports offline and reconnects with capped exponential
// backoff.
type WebSocketSource struct {
	url       string
	heartbeat time.Duration
	baseDelay time.Duration
	maxDelay  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// WebSocketOption configures a WebSocketSource.
type WebSocketOption func(*WebSocketSource)

// WithHeartbeat sets the ping interval.
func WithHeartbeat(d time.Duration) WebSocketOption {
	return func(s *WebSocketSource) { s.heartbeat = d }
}

// WithReconnectDelay sets the first and the largest reconnect delay.
func WithReconnectDelay(base, limit time.Duration) WebSocketOption {
	return func(s *WebSocketSource) {
		s.baseDelay = base
		s.maxDelay = limit
	}
}

// WithWebSocketLogger sets the logger.
func WithWebSocketLogger(l *slog.Logger) WebSocketOption {
	return func(s *WebSocketSource) { s.logger = l }
}

// NewWebSocketSource creates a source for the ws:// or wss:// url.
func NewWebSocketSource(url string, opts ...WebSocketOption) *WebSocketSource {
	s := &WebSocketSource{
		url:       url,
		heartbeat: 25 * time.Second,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
		timeout:   10 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check dials once and closes the connection.
func (s *WebSocketSource) Check(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return false, nil
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return true, nil
}

// Run keeps a connection open until ctx is cancelled.
func (s *WebSocketSource) Run(ctx context.Context, report func(bool)) error {
	attempt := 0
	for {
		dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
		conn, _, err := websocket.Dial(dialCtx, s.url, nil)
		cancel()

		if err == nil {
			attempt = 0
			report(true)
			s.hold(ctx, conn)
		} else {
			s.logger.Debug("realtime dial failed", "url", s.url, "error", err)
		}

		if ctx.Err() != nil {
			return nil
		}
		report(false)

		delay := backoff(s.baseDelay, s.maxDelay, attempt)
		attempt++
		s.logger.Debug("realtime reconnecting", "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// hold returns when the connection drops, a heartbeat fails or ctx ends.
func (s *WebSocketSource) hold(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A reader must be active for pings to receive their pongs.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(connCtx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-connCtx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(connCtx, s.timeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				s.logger.Warn("realtime heartbeat failed", "error", err)
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func backoff(base, limit time.Duration, attempt int) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt))
	return time.Duration(math.Min(d, float64(limit)))
}
