package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketbizz/pocketsync/internal/intercept"
	"github.com/pocketbizz/pocketsync/internal/netstate"
	"github.com/pocketbizz/pocketsync/internal/notify"
	"github.com/pocketbizz/pocketsync/internal/queue"
	"github.com/pocketbizz/pocketsync/internal/syncer"
	"github.com/pocketbizz/pocketsync/internal/testutil"
)

// session is the wired system under test for one run.
type session struct {
	ctx     context.Context
	monitor *netstate.Monitor
	engine  *syncer.Engine
	store   *queue.Store
	app     *fiber.App
	server  *fakeServer

	mu     sync.Mutex
	result *Result
}

func (s *session) record(e TraceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Seq = len(s.result.Trace) + 1
	s.result.Trace = append(s.result.Trace, e)
}

// Run executes a scenario and returns its trace.
//
// Execution flow:
//  1. Open a fresh queue in a temporary directory
//  2. Start the fake server and wire monitor, engine and interceptor
//  3. Execute flow steps in order, checking expect clauses
//  4. Capture the final queue state
//  5. Evaluate assertions
//
// Connectivity listeners run synchronously, so a drain triggered by going
// online completes before the next step.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	result := NewResult()

	dir, err := os.MkdirTemp("", "pocketsync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	s := &session{ctx: ctx, result: result}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := notify.NewBus(notify.WithLogger(logger))
	bus.Subscribe(func(e notify.Event) {
		s.record(TraceEvent{Type: EventNotice, Kind: string(e.Kind), Text: e.Text()})
	})

	s.store, err = queue.Open(filepath.Join(dir, "queue.db"),
		queue.WithClock(testutil.NewManualClock()),
		queue.WithKeyGenerator(testutil.NewSequentialKeys("")),
		queue.WithBus(bus),
		queue.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	defer s.store.Close()

	s.server = newFakeServer(s, scenario.Server)
	defer s.server.Close()

	s.monitor = netstate.New(scenario.InitialOnline, netstate.WithBus(bus), netstate.WithLogger(logger))
	s.engine = syncer.New(s.store, syncer.NewHTTPReplayer(s.server.submitURL()), s.monitor,
		syncer.WithBus(bus),
		syncer.WithLogger(logger),
	)
	s.monitor.OnOnline(func() { s.drain() })

	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.app.Use(intercept.New(s.store, s.monitor, intercept.WithLogger(logger)).Handler())
	s.app.Post("/add_transaction", s.forward)

	for i, step := range scenario.Flow {
		if err := s.execute(i, step); err != nil {
			return nil, err
		}
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue state: %w", err)
	}
	result.State = QueueState{Total: stats.Total, Unsynced: stats.Unsynced}

	for _, a := range scenario.Assertions {
		if err := evaluateAssertion(result, a); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

func (s *session) execute(index int, step Step) error {
	switch {
	case step.Submit != nil:
		status, err := s.submit(step.Submit)
		if err != nil {
			return fmt.Errorf("flow[%d]: %w", index, err)
		}
		s.record(TraceEvent{Type: EventSubmit, Text: step.Submit["description"], Status: status})
		if step.Expect != nil && step.Expect.Status != status {
			s.result.AddError(fmt.Sprintf("flow[%d]: expected status %d, got %d", index, step.Expect.Status, status))
		}
	case step.Online != nil:
		s.monitor.Set(*step.Online)
	case step.Server != "":
		s.server.setDown(step.Server == ServerDown)
		s.record(TraceEvent{Type: EventServer, Text: step.Server})
	case step.Drain:
		s.drain()
	}
	return nil
}

func (s *session) submit(fields map[string]string) (int, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/add_transaction", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)

	resp, err := s.app.Test(req, -1)
	if err != nil {
		return 0, fmt.Errorf("submit: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// forward stands in for the live server path the interceptor falls through to.
func (s *session) forward(c *fiber.Ctx) error {
	req, err := http.NewRequestWithContext(c.UserContext(), http.MethodPost, s.server.submitURL(), strings.NewReader(string(c.Body())))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return c.SendStatus(fiber.StatusBadGateway)
	}
	resp.Body.Close()
	return c.SendStatus(resp.StatusCode)
}

func (s *session) drain() {
	res, err := s.engine.Drain(s.ctx)
	if err != nil {
		s.result.AddError(fmt.Sprintf("drain: %v", err))
	}
	s.record(TraceEvent{
		Type: EventDrain,
		Kind: string(res.Skipped),
		Text: fmt.Sprintf("attempted=%d succeeded=%d failed=%d", res.Attempted, res.Succeeded, res.Failed),
	})
}

// fakeServer is the PocketBizz submission endpoint.
type fakeServer struct {
	*httptest.Server
	session *session
	reject  []string

	mu   sync.Mutex
	down bool
}

func newFakeServer(s *session, script ServerScript) *fakeServer {
	f := &fakeServer{session: s, reject: script.Reject}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeServer) submitURL() string {
	return f.URL + syncer.DefaultSubmitPath
}

func (f *fakeServer) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	desc := r.PostFormValue("description")
	key := r.Header.Get("Idempotency-Key")

	f.mu.Lock()
	down := f.down
	f.mu.Unlock()

	status := http.StatusOK
	switch {
	case down:
		status = http.StatusServiceUnavailable
	case slices.Contains(f.reject, desc):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusOK {
		f.session.record(TraceEvent{Type: EventReceived, Text: desc, Key: key})
	} else {
		f.session.record(TraceEvent{Type: EventRejected, Text: desc, Key: key, Status: status})
	}
	w.WriteHeader(status)
}
