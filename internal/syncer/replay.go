package syncer

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pocketbizz/pocketsync/internal/ledger"
)

// DefaultSubmitPath is where PocketBizz accepts transaction forms.
const DefaultSubmitPath = "/add_transaction"

// Replayer sends one queued record to the server.
type Replayer interface {
	Replay(ctx context.Context, rec ledger.QueuedTransaction) error
}

// HTTPReplayer re-submits records the same way the browser form does: a
// urlencoded POST to the submission endpoint.
//
// Thread-safety: HTTPReplayer is safe for concurrent use.
type HTTPReplayer struct {
	url    string
	client *http.Client
	header http.Header
}

// ReplayerOption configures an HTTPReplayer.
type ReplayerOption func(*HTTPReplayer)

// WithHTTPClient sets the HTTP client. Redirects are followed, so the status
// judged is the final one.
func WithHTTPClient(c *http.Client) ReplayerOption {
	return func(r *HTTPReplayer) { r.client = c }
}

// WithSessionCookie attaches the user's session cookie (raw "name=value").
func WithSessionCookie(cookie string) ReplayerOption {
	return func(r *HTTPReplayer) {
		if cookie != "" {
			r.header.Set("Cookie", cookie)
		}
	}
}

// WithBearerToken attaches an Authorization header.
func WithBearerToken(token string) ReplayerOption {
	return func(r *HTTPReplayer) {
		if token != "" {
			r.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// NewHTTPReplayer creates a replayer posting to submitURL.
func NewHTTPReplayer(submitURL string, opts ...ReplayerOption) *HTTPReplayer {
	r := &HTTPReplayer{
		url:    submitURL,
		client: http.DefaultClient,
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Replay posts rec and returns a *ReplayError unless the server answers 2xx.
// There is no retry here; a failed record is picked up by the next drain.
func (r *HTTPReplayer) Replay(ctx context.Context, rec ledger.QueuedTransaction) error {
	body := rec.Draft().FormValues().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader(body))
	if err != nil {
		return &ReplayError{ID: rec.ID, Err: err}
	}
	for k, vs := range r.header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", rec.IdempotencyKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return &ReplayError{ID: rec.ID, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ReplayError{ID: rec.ID, StatusCode: resp.StatusCode}
	}
	return nil
}
