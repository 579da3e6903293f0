package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
)

// OfflinePlaceholder is served when neither the network nor the cache can answer.
const OfflinePlaceholder = "Offline - PocketBizz"

// SourceHeader tells the page where a response came from.
const SourceHeader = "X-PocketSync-Source"

// Response sources reported in SourceHeader.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
	SourceOffline = "offline"
)

// Handler returns the fetch handler. Mount it after any middleware that must
// see requests first.
func (w *Worker) Handler() fiber.Handler {
	return w.serve
}

func (w *Worker) serve(c *fiber.Ctx) error {
	target, err := w.resolve(c.OriginalURL())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request url")
	}
	header := requestHeader(c)

	if w.State() != StateActivated {
		return w.passThrough(c, target, header)
	}
	if c.Method() != fiber.MethodGet {
		return w.networkOnly(c, target, header)
	}

	switch classify(header, target, w.apiPrefix) {
	case classNavigation:
		return w.navigate(c, target, header)
	case classStatic:
		return w.cacheFirst(c, target, header)
	case classAPI:
		return w.networkOnly(c, target, header)
	default:
		return w.networkFirst(c, target, header)
	}
}

// passThrough forwards without touching the cache.
func (w *Worker) passThrough(c *fiber.Ctx, target *url.URL, header http.Header) error {
	e, err := w.fetch(c, target, header)
	if err != nil {
		w.logger.Warn("upstream unreachable", "url", target.String(), "error", err)
		return c.Status(fiber.StatusBadGateway).SendString("upstream unreachable")
	}
	return w.send(c, e, SourceNetwork)
}

// networkOnly is used for API calls and form posts: the network answers, or
// the page gets a JSON body saying the request will be synced.
func (w *Worker) networkOnly(c *fiber.Ctx, target *url.URL, header http.Header) error {
	e, err := w.fetch(c, target, header)
	if err != nil {
		w.logger.Debug("api request failed offline", "url", target.String(), "error", err)
		c.Set(SourceHeader, SourceOffline)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "Offline",
			"message": "Request will be synced when online",
		})
	}
	return w.send(c, e, SourceNetwork)
}

// cacheFirst serves static assets from the cache and fills it on a miss.
func (w *Worker) cacheFirst(c *fiber.Ctx, target *url.URL, header http.Header) error {
	if e, ok := w.match(c.UserContext(), CacheKey(fiber.MethodGet, target)); ok {
		return w.send(c, e, SourceCache)
	}

	e, err := w.fetch(c, target, header)
	if err != nil {
		return w.placeholder(c)
	}
	w.store(c.UserContext(), target, e)
	return w.send(c, e, SourceNetwork)
}

// networkFirst tries the network, stores good responses and falls back to the
// exact cached response.
func (w *Worker) networkFirst(c *fiber.Ctx, target *url.URL, header http.Header) error {
	e, err := w.fetch(c, target, header)
	if err == nil {
		w.store(c.UserContext(), target, e)
		return w.send(c, e, SourceNetwork)
	}

	if cached, ok := w.match(c.UserContext(), CacheKey(fiber.MethodGet, target)); ok {
		return w.send(c, cached, SourceCache)
	}
	return w.placeholder(c)
}

// navigate tries the network and falls back to the cached app root.
func (w *Worker) navigate(c *fiber.Ctx, target *url.URL, header http.Header) error {
	e, err := w.fetch(c, target, header)
	if err == nil {
		return w.send(c, e, SourceNetwork)
	}

	root, rerr := w.resolve("/")
	if rerr == nil {
		if cached, ok := w.match(c.UserContext(), CacheKey(fiber.MethodGet, root)); ok {
			return w.send(c, cached, SourceCache)
		}
	}
	return w.placeholder(c)
}

func (w *Worker) placeholder(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlain)
	c.Set(SourceHeader, SourceOffline)
	return c.Status(fiber.StatusOK).SendString(OfflinePlaceholder)
}

func (w *Worker) match(ctx context.Context, key string) (Entry, bool) {
	e, ok, err := w.storage.Match(ctx, w.cacheName, key)
	if err != nil {
		w.logger.Warn("cache lookup failed", "key", key, "error", err)
		return Entry{}, false
	}
	return e, ok
}

// store keeps a copy of a 200 GET response unless its URL is excluded. A
// failed write is logged; the caller still serves the response.
func (w *Worker) store(ctx context.Context, target *url.URL, e Entry) {
	if e.Status != http.StatusOK || !w.ShouldCache(target.String()) {
		return
	}
	if err := w.storage.Put(ctx, w.cacheName, e); err != nil {
		werr := &Error{Code: ErrCodeCacheWriteFailed, Message: "store response", URL: target.String(), Err: err}
		w.logger.Warn("cache write failed", "error", werr)
	}
}

// fetch forwards the current request to target and buffers the answer.
func (w *Worker) fetch(c *fiber.Ctx, target *url.URL, header http.Header) (Entry, error) {
	var body io.Reader
	if b := c.Body(); len(b) > 0 {
		body = bytes.NewReader(append([]byte(nil), b...))
	}
	req, err := http.NewRequestWithContext(c.UserContext(), c.Method(), target.String(), body)
	if err != nil {
		return Entry{}, err
	}
	req.Header = header

	resp, err := w.client.Do(req)
	if err != nil {
		return Entry{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("read upstream body: %w", err)
	}
	return Entry{
		Key:      CacheKey(c.Method(), target),
		Status:   resp.StatusCode,
		Header:   filterHeader(resp.Header),
		Body:     data,
		StoredAt: w.clock.Now().UTC(),
	}, nil
}

func (w *Worker) send(c *fiber.Ctx, e Entry, source string) error {
	for k, vs := range e.Header {
		for _, v := range vs {
			c.Response().Header.Add(k, v)
		}
	}
	c.Set(SourceHeader, source)
	return c.Status(e.Status).Send(e.Body)
}

func requestHeader(c *fiber.Ctx) http.Header {
	h := http.Header{}
	c.Request().Header.VisitAll(func(k, v []byte) {
		h.Add(string(k), string(v))
	})
	return filterHeader(h)
}

func filterHeader(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for k, vs := range in {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return out
}
