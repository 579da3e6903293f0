// Package intercept captures transaction form submissions while the server
// is unreachable and queues them instead.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketbizz/pocketsync/internal/ledger"
	"github.com/pocketbizz/pocketsync/internal/notify"
)

// DefaultConfirmDelay is how long the confirmation shows before returning home.
const DefaultConfirmDelay = 1500 * time.Millisecond

// Enqueuer stores a draft for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, d ledger.Draft) (ledger.QueuedTransaction, error)
}

// Connectivity reports whether the server is believed reachable.
type Connectivity interface {
	IsOnline() bool
}

// SyncRegistrar records a background-sync request.
type SyncRegistrar interface {
	RegisterSync(tag string)
}

// Interceptor is fiber middleware for transaction forms.
type Interceptor struct {
	store    Enqueuer
	net      Connectivity
	sync     SyncRegistrar
	tag      string
	delay    time.Duration
	redirect string
	logger   *slog.Logger
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithSyncRegistrar registers tag with r after each queued submission.
func WithSyncRegistrar(r SyncRegistrar, tag string) Option {
	return func(i *Interceptor) {
		i.sync = r
		i.tag = tag
	}
}

// WithConfirmDelay sets how long the confirmation stays before redirecting.
func WithConfirmDelay(d time.Duration) Option {
	return func(i *Interceptor) { i.delay = d }
}

// WithRedirect sets where the confirmation sends the user.
func WithRedirect(path string) Option {
	return func(i *Interceptor) { i.redirect = path }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interceptor) { i.logger = l }
}

// New creates an interceptor. A nil store disables interception, so offline
// submissions fail the way they would without pocketsync.
func New(store Enqueuer, net Connectivity, opts ...Option) *Interceptor {
	i := &Interceptor{
		store:    store,
		net:      net,
		delay:    DefaultConfirmDelay,
		redirect: "/",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Handler returns the middleware.
func (i *Interceptor) Handler() fiber.Handler {
	return i.handle
}

func (i *Interceptor) handle(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost || i.store == nil || i.net.IsOnline() {
		return c.Next()
	}

	fields, ok := formFields(c)
	if !ok || !ledger.IsTransactionForm(fields) {
		return c.Next()
	}

	draft, err := ledger.ParseForm(fields)
	if err != nil {
		return i.invalid(c, err)
	}

	rec, err := i.store.Enqueue(c.UserContext(), draft)
	if ledger.IsValidationError(err) {
		return i.invalid(c, err)
	}
	if err != nil {
		i.logger.Warn("offline queue unavailable, passing submission through", "error", err)
		return c.Next()
	}

	if i.sync != nil {
		i.sync.RegisterSync(i.tag)
	}
	return i.confirm(c, rec)
}

func (i *Interceptor) confirm(c *fiber.Ctx, rec ledger.QueuedTransaction) error {
	text := notify.Event{Kind: notify.KindStored}.Text()
	seconds := int(math.Ceil(i.delay.Seconds()))
	c.Set("Refresh", fmt.Sprintf("%d; url=%s", seconds, i.redirect))
	c.Status(fiber.StatusAccepted)

	if c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
		return c.JSON(fiber.Map{
			"status":         "queued",
			"id":             rec.ID,
			"message":        text,
			"redirect":       i.redirect,
			"redirect_after": i.delay.Milliseconds(),
		})
	}
	return c.SendString(text)
}

func (i *Interceptor) invalid(c *fiber.Ctx, err error) error {
	var ve *ledger.ValidationError
	if !errors.As(err, &ve) {
		ve = &ledger.ValidationError{Message: err.Error()}
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error":   "invalid transaction",
		"field":   ve.Field,
		"message": ve.Message,
	})
}

// formFields reads urlencoded or multipart fields, keeping the first value of
// each name.
func formFields(c *fiber.Ctx) (map[string]string, bool) {
	ct := strings.ToLower(string(c.Request().Header.ContentType()))
	fields := map[string]string{}

	switch {
	case strings.HasPrefix(ct, fiber.MIMEApplicationForm):
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			if _, seen := fields[string(k)]; !seen {
				fields[string(k)] = string(v)
			}
		})
		return fields, true
	case strings.HasPrefix(ct, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, false
		}
		for k, vs := range form.Value {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
		return fields, true
	default:
		return nil, false
	}
}
