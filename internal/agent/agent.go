// Package agent assembles the offline core into one running process: the
// queue, connectivity monitor, sync engine, cache worker, form interceptor and
// the admin API, all behind a single fiber app.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pocketbizz/pocketsync/internal/clock"
	"github.com/pocketbizz/pocketsync/internal/config"
	"github.com/pocketbizz/pocketsync/internal/intercept"
	"github.com/pocketbizz/pocketsync/internal/msg"
	"github.com/pocketbizz/pocketsync/internal/netstate"
	"github.com/pocketbizz/pocketsync/internal/notify"
	"github.com/pocketbizz/pocketsync/internal/queue"
	"github.com/pocketbizz/pocketsync/internal/syncer"
	"github.com/pocketbizz/pocketsync/internal/worker"
)

// AdminPrefix is where the admin API is mounted.
const AdminPrefix = "/__pocketsync"

// Agent is a fully wired pocketsync instance.
type Agent struct {
	cfg    config.Config
	logger *slog.Logger

	bus     *notify.Bus
	events  *notify.Recorder
	store   *queue.Store
	monitor *netstate.Monitor
	source  netstate.Source
	manual  *netstate.ManualSource
	engine  *syncer.Engine
	storage worker.Storage
	worker  *worker.Worker
	hub     *msg.Hub
	page    *msg.Client
	app     *fiber.App

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type options struct {
	logger     *slog.Logger
	source     netstate.Source
	client     *http.Client
	storage    worker.Storage
	clock      clock.Clock
	requestLog bool
	opener     worker.Opener
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSource overrides the connectivity source chosen by configuration.
func WithSource(s netstate.Source) Option {
	return func(o *options) { o.source = s }
}

// WithHTTPClient sets the client used for replays and probes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithCacheStorage overrides the cache backend chosen by configuration. Close
// closes it.
func WithCacheStorage(s worker.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithClock sets the clock for queue and cache timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRequestLog enables per-request access logs.
func WithRequestLog(enabled bool) Option {
	return func(o *options) { o.requestLog = enabled }
}

// WithOpener sets how a notification click opens a new page.
func WithOpener(op worker.Opener) Option {
	return func(o *options) { o.opener = op }
}

// New builds every component. A queue that cannot be opened is not fatal: the
// agent runs without offline capture and submissions require the network.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Agent, error) {
	o := options{
		logger: slog.Default(),
		client: http.DefaultClient,
		clock:  clock.System{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Agent{cfg: cfg, logger: o.logger}
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.bus = notify.NewBus(notify.WithLogger(o.logger))
	a.bus.Subscribe(notify.LogSink(o.logger))
	a.events = notify.NewRecorder(50)
	a.bus.Subscribe(a.events.Handle)

	a.store = a.openQueue(o)

	a.source = o.source
	if a.source == nil {
		a.source, a.manual = newSource(cfg, o)
	}
	initial := true
	if a.manual != nil {
		initial = cfg.Connectivity.InitialOnline
	}
	a.monitor = netstate.New(initial,
		netstate.WithBus(a.bus),
		netstate.WithLogger(o.logger),
		netstate.WithIndicator(netstate.NewIndicator(cfg.UI.OnlineBannerTTL)),
	)

	if a.store != nil {
		replayer := syncer.NewHTTPReplayer(cfg.Sync.SubmitURL,
			syncer.WithHTTPClient(o.client),
			syncer.WithSessionCookie(cfg.Sync.SessionCookie),
			syncer.WithBearerToken(cfg.Sync.BearerToken),
		)
		a.engine = syncer.New(a.store, replayer, a.monitor,
			syncer.WithBus(a.bus),
			syncer.WithLogger(o.logger),
			syncer.WithReplayTimeout(cfg.Sync.ReplayTimeout),
		)
	}

	storage := o.storage
	var err error
	if storage == nil {
		storage, err = OpenStorage(ctx, cfg)
	}
	if err != nil {
		a.closeQueue()
		a.cancel()
		return nil, err
	}
	a.storage = storage

	a.hub = msg.NewHub(msg.WithLogger(o.logger))
	workerOpts := []worker.Option{
		worker.WithCacheName(cfg.Cache.Name),
		worker.WithManifest(cfg.Cache.Manifest),
		worker.WithExclusions(cfg.Cache.Exclusions),
		worker.WithAPIPrefix(cfg.Cache.APIPrefix),
		worker.WithSyncTag(cfg.Sync.Tag),
		worker.WithAppOrigin(cfg.PublicOrigin),
		worker.WithHub(a.hub),
		worker.WithBus(a.bus),
		worker.WithClock(o.clock),
		worker.WithLogger(o.logger),
	}
	if o.opener != nil {
		workerOpts = append(workerOpts, worker.WithOpener(o.opener))
	}
	a.worker, err = worker.New(cfg.Upstream, storage, workerOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create worker: %w", err)
	}

	a.page = a.hub.Register(cfg.PublicOrigin + "/")
	a.monitor.OnOnline(a.handleOnline)

	// A nil *queue.Store must reach the interceptor as a nil interface.
	var enqueuer intercept.Enqueuer
	if a.store != nil {
		enqueuer = a.store
	}
	interceptor := intercept.New(enqueuer, a.monitor,
		intercept.WithSyncRegistrar(a.worker, cfg.Sync.Tag),
		intercept.WithConfirmDelay(cfg.UI.ConfirmDelay),
		intercept.WithLogger(o.logger),
	)

	a.app = fiber.New(fiber.Config{
		AppName:               "pocketsync",
		DisableStartupMessage: true,
	})
	a.app.Use(recover.New())
	if o.requestLog {
		a.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	a.mountAdmin(a.app.Group(AdminPrefix))
	a.app.Use(interceptor.Handler())
	a.app.Use(a.worker.Handler())

	return a, nil
}

func (a *Agent) openQueue(o options) *queue.Store {
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		a.logger.Warn("offline queue unavailable, submissions require network", "error", err)
		return nil
	}
	store, err := queue.Open(a.cfg.QueuePath(),
		queue.WithBus(a.bus),
		queue.WithLogger(o.logger),
		queue.WithClock(o.clock),
	)
	if err != nil {
		a.logger.Warn("offline queue unavailable, submissions require network", "error", err)
		return nil
	}
	return store
}

func newSource(cfg config.Config, o options) (netstate.Source, *netstate.ManualSource) {
	switch cfg.Connectivity.Mode {
	case config.ConnectivityWebSocket:
		return netstate.NewWebSocketSource(cfg.Connectivity.WebSocketURL,
			netstate.WithHeartbeat(cfg.Connectivity.Heartbeat),
			netstate.WithWebSocketLogger(o.logger),
		), nil
	case config.ConnectivityManual:
		m := netstate.NewManualSource(cfg.Connectivity.InitialOnline)
		return m, m
	default:
		return netstate.NewProbeSource(cfg.Connectivity.HealthURL,
			netstate.WithProbeInterval(cfg.Connectivity.ProbeInterval),
			netstate.WithProbeClient(o.client),
			netstate.WithProbeLogger(o.logger),
		), nil
	}
}

// OpenStorage opens the cache backend cfg selects. A Redis backend must answer
// a ping.
func OpenStorage(ctx context.Context, cfg config.Config) (worker.Storage, error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		s := worker.NewRedisStorage(worker.NewRedisClient(worker.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}), cfg.Cache.Redis.Prefix)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return s, nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return worker.OpenSQLiteStorage(cfg.CachePath())
	}
}

// App returns the fiber app serving pages and the admin API.
func (a *Agent) App() *fiber.App { return a.app }

// Monitor returns the connectivity monitor.
func (a *Agent) Monitor() *netstate.Monitor { return a.monitor }

// Worker returns the cache worker.
func (a *Agent) Worker() *worker.Worker { return a.worker }

// Store returns the queue store, nil when it could not be opened.
func (a *Agent) Store() *queue.Store { return a.store }

// Events returns the recent notices.
func (a *Agent) Events() *notify.Recorder { return a.events }

// Bus returns the notification bus.
func (a *Agent) Bus() *notify.Bus { return a.bus }

// SetOnline applies an operator override. With a manual source the value also
// becomes the source's state, so it survives the next Check.
func (a *Agent) SetOnline(online bool) {
	if a.manual != nil {
		a.manual.Set(online)
	}
	a.monitor.Set(online)
}

// Drain runs one sync now.
func (a *Agent) Drain(ctx context.Context) (syncer.Result, error) {
	if a.engine == nil {
		return syncer.Result{}, errQueueUnavailable
	}
	return a.engine.Drain(ctx)
}

var errQueueUnavailable = errors.New("offline queue unavailable")

// handleOnline runs on every offline-to-online transition. The agent's own
// drain covers the registered background syncs, so they are settled rather
// than fired: one transition means one drain.
func (a *Agent) handleOnline() {
	if n := a.worker.SettleRegisteredSyncs(); n > 0 {
		a.logger.Debug("registered syncs covered by online drain", "tags", n)
	}
	a.background(func(ctx context.Context) { a.drain(ctx, "online") })
}

func (a *Agent) background(fn func(ctx context.Context)) {
	if a.ctx.Err() != nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

func (a *Agent) drain(ctx context.Context, reason string) {
	res, err := a.Drain(ctx)
	if err != nil {
		a.logger.Warn("drain failed", "reason", reason, "error", err)
		return
	}
	a.logger.Debug("drain finished", "reason", reason,
		"skipped", res.Skipped, "succeeded", res.Succeeded, "failed", res.Failed)
}

// Start installs and activates the worker. An install failure leaves the
// worker forwarding requests without caching.
func (a *Agent) Start(ctx context.Context) {
	if err := a.worker.Install(ctx); err != nil {
		a.logger.Warn("worker install failed, serving as pass-through proxy", "error", err)
		return
	}
	if err := a.worker.Activate(ctx); err != nil {
		a.logger.Warn("worker activation failed", "error", err)
	}
}

// Run listens on the configured address until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Listen, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the connectivity source, the page message loop, worker startup
// and the HTTP server on ln until ctx is cancelled.
func (a *Agent) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var loops sync.WaitGroup
	loops.Add(3)
	go func() {
		defer loops.Done()
		if err := a.monitor.Follow(ctx, a.source); err != nil {
			a.logger.Error("connectivity source stopped", "error", err)
		}
	}()
	go func() {
		defer loops.Done()
		a.clientLoop(ctx)
	}()
	go func() {
		defer loops.Done()
		a.Start(ctx)
	}()

	errc := make(chan error, 1)
	go func() { errc <- a.app.Listener(ln) }()
	a.logger.Info("pocketsync listening", "addr", ln.Addr().String(), "upstream", a.cfg.Upstream)

	var err error
	select {
	case <-ctx.Done():
		err = a.app.ShutdownWithTimeout(5 * time.Second)
	case err = <-errc:
	}
	cancel()
	loops.Wait()
	return err
}

// clientLoop is the agent's own page: it reacts to worker messages.
func (a *Agent) clientLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-a.page.Messages():
			if !ok {
				return
			}
			a.handleMessage(ctx, m)
		}
	}
}

func (a *Agent) handleMessage(ctx context.Context, m msg.Message) {
	switch m.Kind {
	case msg.KindSyncRequested:
		a.drain(ctx, "sync:"+m.Tag)
	case msg.KindClaimed:
		a.logger.Info("page controlled by worker", "cache", a.worker.CacheName())
	case msg.KindFocus:
		a.logger.Debug("page focus requested", "url", m.URL)
	case msg.KindNotification:
		a.logger.Info("notification", "title", m.Title, "body", m.Body)
	default:
		a.logger.Warn("unknown page message", "kind", m.Kind)
	}
}

// Close stops background work and releases the databases.
func (a *Agent) Close() error {
	a.cancel()
	a.wg.Wait()

	var errs []error
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache storage: %w", err))
		}
	}
	if err := a.closeQueue(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Agent) closeQueue() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close queue: %w", err)
	}
	return nil
}
