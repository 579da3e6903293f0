package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketbizz/pocketsync/internal/msg"
	"github.com/pocketbizz/pocketsync/internal/netstate"
	"github.com/pocketbizz/pocketsync/internal/notify"
	"github.com/pocketbizz/pocketsync/internal/queue"
	"github.com/pocketbizz/pocketsync/internal/worker"
)

// Status is the admin view of a running agent.
type Status struct {
	Online       bool                    `json:"online"`
	Indicator    netstate.IndicatorState `json:"indicator"`
	WorkerState  worker.State            `json:"worker_state"`
	CacheName    string                  `json:"cache_name"`
	PendingSyncs []string                `json:"pending_syncs"`
	Clients      int                     `json:"clients"`
	Draining     bool                    `json:"draining"`
	Queue        *queue.Stats            `json:"queue,omitempty"`
	QueueError   string                  `json:"queue_error,omitempty"`
	Events       []EventView             `json:"events"`
}

// EventView is a notice as shown to the operator.
type EventView struct {
	Kind notify.Kind `json:"kind"`
	Text string      `json:"text"`
	At   time.Time   `json:"at"`
}

// Status collects the current state.
func (a *Agent) Status(ctx context.Context) Status {
	st := Status{
		Online:       a.monitor.IsOnline(),
		Indicator:    a.monitor.Indicator().State(),
		WorkerState:  a.worker.State(),
		CacheName:    a.worker.CacheName(),
		PendingSyncs: a.worker.PendingSyncs(),
		Clients:      len(a.hub.Clients()),
		Draining:     a.engine != nil && a.engine.Running(),
		Events:       []EventView{},
	}
	if a.store == nil {
		st.QueueError = errQueueUnavailable.Error()
	} else if stats, err := a.store.Stats(ctx); err != nil {
		st.QueueError = err.Error()
	} else {
		st.Queue = &stats
	}
	for _, e := range a.events.Events() {
		st.Events = append(st.Events, EventView{Kind: e.Kind, Text: e.Text(), At: e.At})
	}
	return st
}

func (a *Agent) mountAdmin(r fiber.Router) {
	r.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(a.Status(c.UserContext()))
	})

	r.Get("/queue", func(c *fiber.Ctx) error {
		if a.store == nil {
			return fail(c, fiber.StatusServiceUnavailable, errQueueUnavailable)
		}
		records, err := a.store.List(c.UserContext(), queue.ListOptions{
			IncludeSynced: c.QueryBool("all"),
			Limit:         c.QueryInt("limit"),
		})
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(records)
	})

	r.Post("/drain", func(c *fiber.Ctx) error {
		res, err := a.Drain(c.UserContext())
		if errors.Is(err, errQueueUnavailable) {
			return fail(c, fiber.StatusServiceUnavailable, err)
		}
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(res)
	})

	r.Post("/online", func(c *fiber.Ctx) error {
		a.SetOnline(true)
		return c.JSON(fiber.Map{"online": a.monitor.IsOnline()})
	})

	r.Post("/offline", func(c *fiber.Ctx) error {
		a.SetOnline(false)
		return c.JSON(fiber.Map{"online": a.monitor.IsOnline()})
	})

	r.Post("/sync", func(c *fiber.Ctx) error {
		if name := c.Query("type"); name != "" {
			kind, err := msg.Parse(name)
			if err != nil {
				return fail(c, fiber.StatusBadRequest, err)
			}
			if kind != msg.KindSyncRequested {
				return fail(c, fiber.StatusBadRequest, fmt.Errorf("message %q does not request a sync", name))
			}
		}
		tag := c.Query("tag", a.cfg.Sync.Tag)
		return c.JSON(fiber.Map{"tag": tag, "handled": a.worker.HandleSync(c.UserContext(), tag)})
	})

	r.Post("/push", func(c *fiber.Ctx) error {
		return c.JSON(a.worker.HandlePush(c.UserContext(), c.Body()))
	})

	r.Post("/notificationclick", func(c *fiber.Ctx) error {
		outcome, err := a.worker.HandleNotificationClick(c.UserContext(), c.Query("action"))
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(fiber.Map{"outcome": outcome})
	})

	r.Post("/install", func(c *fiber.Ctx) error {
		if err := a.worker.Install(c.UserContext()); err != nil {
			return fail(c, fiber.StatusBadGateway, err)
		}
		return c.JSON(fiber.Map{"state": a.worker.State()})
	})

	r.Post("/activate", func(c *fiber.Ctx) error {
		if err := a.worker.Activate(c.UserContext()); err != nil {
			status := fiber.StatusInternalServerError
			if worker.IsNotInstalled(err) {
				status = fiber.StatusConflict
			}
			return fail(c, status, err)
		}
		return c.JSON(fiber.Map{"state": a.worker.State()})
	})

	r.Get("/cache", func(c *fiber.Ctx) error {
		keys, err := a.worker.Storage().Keys(c.UserContext(), a.worker.CacheName())
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(fiber.Map{"cache": a.worker.CacheName(), "keys": keys})
	})
}

func fail(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
