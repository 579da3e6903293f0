package msg

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownClient is returned by Send for an id that is not registered.
var ErrUnknownClient = errors.New("unknown client")

// DefaultBuffer is the per-client queue length.
const DefaultBuffer = 16

// Client is a registered page.
type Client struct {
	ID  string `json:"id"`
	URL string `json:"url"`

	ch chan Message
}

// Messages returns the channel the page reads from. It is closed on Unregister.
func (c *Client) Messages() <-chan Message {
	return c.ch
}

// Hub tracks the pages a worker controls and delivers messages to them.
//
// Delivery never blocks the sender: when a client's buffer is full the message
// is dropped for that client and a warning is logged.
//
// Thread-safety: Hub is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	order   []string
	buffer  int
	logger  *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-client buffer length.
func WithBuffer(n int) HubOption {
	return func(h *Hub) { h.buffer = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		buffer:  DefaultBuffer,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a page currently showing url.
func (h *Hub) Register(url string) *Client {
	c := &Client{
		ID:  uuid.Must(uuid.NewV7()).String(),
		URL: url,
		ch:  make(chan Message, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	h.order = append(h.order, c.ID)
	return c
}

// Unregister removes the client and closes its channel. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	for i, cid := range h.order {
		if cid == id {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
	close(c.ch)
}

// Clients returns the registered pages in registration order.
func (h *Hub) Clients() []Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Client, 0, len(h.order))
	for _, id := range h.order {
		c := h.clients[id]
		out = append(out, Client{ID: c.ID, URL: c.URL})
	}
	return out
}

// Broadcast delivers m to every client and returns how many accepted it.
func (h *Hub) Broadcast(m Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, id := range h.order {
		if h.deliver(h.clients[id], m) {
			delivered++
		}
	}
	return delivered
}

// Send delivers m to one client.
func (h *Hub) Send(id string, m Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[id]
	if !ok {
		return ErrUnknownClient
	}
	h.deliver(c, m)
	return nil
}

func (h *Hub) deliver(c *Client, m Message) bool {
	select {
	case c.ch <- m:
		return true
	default:
		h.logger.Warn("client message buffer full, dropping", "client", c.ID, "kind", m.Kind)
		return false
	}
}
