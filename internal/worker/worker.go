// Package worker is the cache-serving proxy between the browser and the
// PocketBizz server.
//
// A Worker goes through the lifecycle Parsed, Installing, Installed,
// Activating, Activated. Install fetches the app shell into a named cache
// generation; Activate deletes every other generation and takes control of the
// pages. Until it is activated the worker forwards requests untouched.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pocketbizz/pocketsync/internal/clock"
	"github.com/pocketbizz/pocketsync/internal/msg"
	"github.com/pocketbizz/pocketsync/internal/notify"
)

// State is a lifecycle stage.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Sync tags.
const (
	DefaultSyncTag = "offline-transactions-sync"
	LegacySyncTag  = "background-sync-transactions"
)

// Notification defaults.
const (
	DefaultNotificationTitle = "PocketBizz"
	DefaultNotificationBody  = "PocketBizz notification"
)

// Opener opens a new page when no existing one can be focused.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Worker proxies and caches requests for one upstream origin.
//
// Thread-safety: Worker is safe for concurrent use.
type Worker struct {
	upstream  *url.URL
	appOrigin string
	storage   Storage
	client    *http.Client
	hub       *msg.Hub
	bus       *notify.Bus
	opener    Opener
	clock     clock.Clock
	logger    *slog.Logger

	cacheName  string
	manifest   []string
	exclusions []string
	apiPrefix  string
	syncTag    string

	mu      sync.Mutex
	state   State
	pending []string
}

// Option configures a Worker.
type Option func(*Worker)

// WithCacheName sets the generation this release installs.
func WithCacheName(name string) Option {
	return func(w *Worker) { w.cacheName = name }
}

// WithManifest sets the URLs fetched on install. Relative URLs resolve against
// the upstream.
func WithManifest(urls []string) Option {
	return func(w *Worker) { w.manifest = urls }
}

// WithExclusions sets the URL substrings that are never cached.
func WithExclusions(patterns []string) Option {
	return func(w *Worker) { w.exclusions = patterns }
}

// WithAPIPrefix sets the path prefix answered with the offline JSON body.
func WithAPIPrefix(prefix string) Option {
	return func(w *Worker) { w.apiPrefix = prefix }
}

// WithSyncTag sets the background-sync tag the worker answers.
func WithSyncTag(tag string) Option {
	return func(w *Worker) { w.syncTag = tag }
}

// WithAppOrigin sets the origin pages are served from, used to pick a page
// to focus on notification click.
func WithAppOrigin(origin string) Option {
	return func(w *Worker) { w.appOrigin = origin }
}

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Worker) { w.client = c }
}

// WithHub sets the hub of controlled pages.
func WithHub(h *msg.Hub) Option {
	return func(w *Worker) { w.hub = h }
}

// WithBus sets the notification bus.
func WithBus(b *notify.Bus) Option {
	return func(w *Worker) { w.bus = b }
}

// WithOpener sets how new pages are opened.
func WithOpener(o Opener) Option {
	return func(w *Worker) { w.opener = o }
}

// WithClock sets the timestamp source for stored entries.
func WithClock(c clock.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a worker in the Parsed state.
func New(upstream string, storage Storage, opts ...Option) (*Worker, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", upstream)
	}

	w := &Worker{
		upstream:   u,
		appOrigin:  u.Scheme + "://" + u.Host,
		storage:    storage,
		client:     newUpstreamClient(),
		hub:        msg.NewHub(),
		clock:      clock.System{},
		logger:     slog.Default(),
		cacheName:  DefaultCacheName,
		manifest:   DefaultManifest,
		exclusions: DefaultExclusions,
		apiPrefix:  DefaultAPIPrefix,
		syncTag:    DefaultSyncTag,
		state:      StateParsed,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.opener == nil {
		w.opener = OpenerFunc(func(_ context.Context, url string) error {
			w.logger.Info("no page to focus, open one", "url", url)
			return nil
		})
	}
	return w, nil
}

// newUpstreamClient does not follow redirects: they are relayed to the browser.
func newUpstreamClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// installClient is the upstream client with default redirect handling.
func (w *Worker) installClient() *http.Client {
	c := *w.client
	c.CheckRedirect = nil
	return &c
}

// State returns the lifecycle stage.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// CacheName returns the generation this release uses.
func (w *Worker) CacheName() string {
	return w.cacheName
}

// Storage returns the cache storage.
func (w *Worker) Storage() Storage {
	return w.storage
}

// Hub returns the hub of controlled pages.
func (w *Worker) Hub() *msg.Hub {
	return w.hub
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// ShouldCache applies the worker's exclusion patterns to rawURL.
func (w *Worker) ShouldCache(rawURL string) bool {
	return ShouldCache(rawURL, w.exclusions)
}

// resolve turns a manifest or request reference into an absolute upstream URL.
func (w *Worker) resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return w.upstream.ResolveReference(r), nil
}

// Install fetches every manifest URL and stores the responses in the current
// generation. Nothing is written unless every fetch succeeds; a write failure
// removes the partial generation. On failure the worker becomes Redundant.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	w.logger.Info("installing", "cache", w.cacheName, "urls", len(w.manifest))

	entries := make([]Entry, 0, len(w.manifest))
	for _, ref := range w.manifest {
		u, err := w.resolve(ref)
		if err != nil {
			return w.installFailed(ref, fmt.Errorf("parse manifest url: %w", err))
		}
		e, err := w.fetchEntry(ctx, u)
		if err != nil {
			return w.installFailed(u.String(), err)
		}
		entries = append(entries, e)
	}

	if err := w.storage.Open(ctx, w.cacheName); err != nil {
		return w.installFailed("", err)
	}
	for _, e := range entries {
		if err := w.storage.Put(ctx, w.cacheName, e); err != nil {
			if _, derr := w.storage.Delete(ctx, w.cacheName); derr != nil {
				w.logger.Error("remove partial cache", "cache", w.cacheName, "error", derr)
			}
			return w.installFailed(e.Key, &Error{Code: ErrCodeCacheWriteFailed, Message: "store manifest entry", Err: err})
		}
	}

	w.setState(StateInstalled)
	w.logger.Info("installed", "cache", w.cacheName, "entries", len(entries))
	return nil
}

func (w *Worker) installFailed(target string, err error) error {
	w.setState(StateRedundant)
	w.logger.Error("install failed", "cache", w.cacheName, "url", target, "error", err)
	return &Error{Code: ErrCodeInstallFailed, Message: "install aborted", URL: target, Err: err}
}

// fetchEntry GETs u for the install manifest; anything but a final 200 is an
// error. Redirects are followed, and the entry is keyed by the manifest URL so
// later requests for it hit the cache.
func (w *Worker) fetchEntry(ctx context.Context, u *url.URL) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Entry{}, err
	}
	resp, err := w.installClient().Do(req)
	if err != nil {
		return Entry{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Entry{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return Entry{
		Key:      CacheKey(http.MethodGet, u),
		Status:   resp.StatusCode,
		Header:   filterHeader(resp.Header),
		Body:     body,
		StoredAt: w.clock.Now().UTC(),
	}, nil
}

// Activate deletes every generation but the current one and claims the pages.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateActivated:
		w.mu.Unlock()
		return nil
	case StateInstalled:
		w.state = StateActivating
		w.mu.Unlock()
	default:
		state := w.state
		w.mu.Unlock()
		return &Error{Code: ErrCodeNotInstalled, Message: fmt.Sprintf("cannot activate from state %s", state)}
	}

	names, err := w.storage.Names(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("activate: %w", err)
	}
	for _, name := range names {
		if name == w.cacheName {
			continue
		}
		w.logger.Info("deleting old cache", "cache", name)
		if _, err := w.storage.Delete(ctx, name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("activate: %w", err)
		}
	}

	w.setState(StateActivated)
	n := w.hub.Broadcast(msg.Message{Kind: msg.KindClaimed})
	w.logger.Info("activated", "cache", w.cacheName, "clients", n)
	return nil
}

// RegisterSync records a background-sync request. Registering a tag that is
// already pending does nothing.
func (w *Worker) RegisterSync(tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.pending {
		if t == tag {
			return
		}
	}
	w.pending = append(w.pending, tag)
	w.logger.Debug("sync registered", "tag", tag)
}

// PendingSyncs returns the registered tags in registration order.
func (w *Worker) PendingSyncs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.pending...)
}

// SettleRegisteredSyncs clears every pending tag without dispatching it, for
// a host that drains its queue itself on the connectivity transition.
func (w *Worker) SettleRegisteredSyncs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.pending)
	w.pending = nil
	return n
}

// HandleSync asks every page to drain its queue when tag is the worker's sync
// tag or the legacy one. The worker never drains itself. It reports whether
// the tag was recognised.
func (w *Worker) HandleSync(_ context.Context, tag string) bool {
	if tag != w.syncTag && tag != LegacySyncTag {
		w.logger.Debug("ignoring unknown sync tag", "tag", tag)
		return false
	}
	n := w.hub.Broadcast(msg.Message{Kind: msg.KindSyncRequested, Tag: tag})
	w.logger.Info("offline transactions sync initiated", "tag", tag, "clients", n)
	return true
}

// Notification is a push message to display.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// HandlePush displays a push payload. A JSON object supplies title, body and
// url; anything else is used as the body text.
func (w *Worker) HandlePush(_ context.Context, payload []byte) Notification {
	n := Notification{}
	if err := json.Unmarshal(payload, &n); err != nil {
		n = Notification{Body: strings.TrimSpace(string(payload))}
	}
	if n.Title == "" {
		n.Title = DefaultNotificationTitle
	}
	if n.Body == "" {
		n.Body = DefaultNotificationBody
	}
	if n.URL == "" {
		n.URL = "/"
	}

	w.bus.Publish(notify.Event{Kind: notify.KindNotification, Title: n.Title, Body: n.Body, URL: n.URL})
	w.hub.Broadcast(msg.Message{Kind: msg.KindNotification, Title: n.Title, Body: n.Body, URL: n.URL})
	return n
}

// ClickOutcome says what a notification click did.
type ClickOutcome string

const (
	ClickIgnored ClickOutcome = "ignored"
	ClickFocused ClickOutcome = "focused"
	ClickOpened  ClickOutcome = "opened"
)

// HandleNotificationClick focuses the first page on the app origin, or opens
// the app root when there is none. Only the "open" action and a click on the
// notification body (empty action) do anything.
func (w *Worker) HandleNotificationClick(ctx context.Context, action string) (ClickOutcome, error) {
	if action != "" && action != "open" {
		return ClickIgnored, nil
	}

	for _, c := range w.hub.Clients() {
		if strings.Contains(c.URL, w.appOrigin) {
			if err := w.hub.Send(c.ID, msg.Message{Kind: msg.KindFocus, URL: c.URL}); err == nil {
				return ClickFocused, nil
			}
		}
	}

	if err := w.opener.Open(ctx, "/"); err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	return ClickOpened, nil
}
