package netstate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Source pushes platform connectivity signals.
type Source interface {
	// Check returns the current connectivity without waiting for a change.
	Check(ctx context.Context) (bool, error)

	// Run calls report with connectivity signals until ctx is cancelled.
	Run(ctx context.Context, report func(online bool)) error
}

// ManualSource is driven by explicit Set calls (admin API, CLI flags).
//
// Thread-safety: ManualSource is safe for concurrent use.
type ManualSource struct {
	mu     sync.Mutex
	online bool
	report func(bool)
}

// NewManualSource creates a source with the given initial value.
func NewManualSource(online bool) *ManualSource {
	return &ManualSource{online: online}
}

// Check returns the last value passed to Set.
func (s *ManualSource) Check(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online, nil
}

// Run forwards Set calls to report until ctx is cancelled.
func (s *ManualSource) Run(ctx context.Context, report func(bool)) error {
	s.mu.Lock()
	s.report = report
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.report = nil
	s.mu.Unlock()
	return nil
}

// Set changes the value and reports it if Run is active.
func (s *ManualSource) Set(online bool) {
	s.mu.Lock()
	s.online = online
	report := s.report
	s.mu.Unlock()

	if report != nil {
		report(online)
	}
}

// DefaultProbeInterval is how often ProbeSource checks the health URL.
const DefaultProbeInterval = 10 * time.Second

// ProbeSource polls an upstream health URL. Any HTTP answer below 500 counts
// as online; transport errors and 5xx count as offline. Only changes are
// reported.
type ProbeSource struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// ProbeOption configures a ProbeSource.
type ProbeOption func(*ProbeSource)

// WithProbeInterval sets the polling interval.
func WithProbeInterval(d time.Duration) ProbeOption {
	return func(p *ProbeSource) { p.interval = d }
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *ProbeSource) { p.timeout = d }
}

// WithProbeClient sets the HTTP client.
func WithProbeClient(c *http.Client) ProbeOption {
	return func(p *ProbeSource) { p.client = c }
}

// WithProbeLogger sets the logger.
func WithProbeLogger(l *slog.Logger) ProbeOption {
	return func(p *ProbeSource) { p.logger = l }
}

// NewProbeSource creates a source polling url.
func NewProbeSource(url string, opts ...ProbeOption) *ProbeSource {
	p := &ProbeSource{
		url:      url,
		interval: DefaultProbeInterval,
		timeout:  5 * time.Second,
		client:   http.DefaultClient,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check performs one probe. The error is only non-nil for a malformed URL.
func (p *ProbeSource) Check(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "error", err)
		return false, nil
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError, nil
}

// Run probes on every tick and reports edges.
func (p *ProbeSource) Run(ctx context.Context, report func(bool)) error {
	last, err := p.Check(ctx)
	if err != nil {
		return err
	}
	report(last)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			online, err := p.Check(ctx)
			if err != nil {
				return err
			}
			if online != last {
				last = online
				report(online)
			}
		}
	}
}
