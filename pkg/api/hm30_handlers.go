package api

import (
	"github.com/gofiber/fiber/v2"
)

func registerHM30Routes(r fiber.Router, d Deps) {
	h := &hm30Handler{d: d}
	r.Get("/status", h.handleStatus)
	r.Post("/connect", h.handleConnect)
	r.Post("/disconnect", h.handleDisconnect)
	r.Post("/send", h.handleSend)
	r.Post("/receive", h.handleReceive)
	r.Put("/auto-refresh", h.handleAutoRefresh)
	r.Get("/messages", h.handleMessages)
	r.Delete("/messages", h.handleClearMessages)
	if d.Traffic != nil {
		r.Get("/traffic", func(c *fiber.Ctx) error {
			return c.JSON(d.Traffic.Stats())
		})
	}
}

type hm30Handler struct {
	d Deps
}

// handleStatus returns the link status; ?sync=true asks the bridge first.
func (h *hm30Handler) handleStatus(c *fiber.Ctx) error {
	if c.QueryBool("sync") {
		if err := h.d.HM30.SyncStatus(c.UserContext()); err != nil {
			return fail(err)
		}
	}
	return c.JSON(fiber.Map{
		"status": h.d.Store.HM30Status.Get(),
		"config": h.d.Store.HM30Config.Get(),
		"error":  h.d.Store.HM30Error.Get(),
	})
}

func (h *hm30Handler) handleConnect(c *fiber.Ctx) error {
	var req HM30ConnectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	if err := h.d.HM30.Connect(c.UserContext(), req.RemoteIP, string(req.RemotePort), string(req.LocalPort)); err != nil {
		return fail(err)
	}
	return c.JSON(h.d.Store.HM30Status.Get())
}

func (h *hm30Handler) handleDisconnect(c *fiber.Ctx) error {
	if err := h.d.HM30.Disconnect(c.UserContext()); err != nil {
		return fail(err)
	}
	return c.JSON(h.d.Store.HM30Status.Get())
}

func (h *hm30Handler) handleSend(c *fiber.Ctx) error {
	var req HM30SendRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	msg, err := h.d.HM30.SendData(c.UserContext(), req.Data, req.Format)
	if err != nil {
		return fail(err)
	}
	if msg == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(msg)
}

// handleReceive polls once; 204 means nothing arrived before the timeout.
func (h *hm30Handler) handleReceive(c *fiber.Ctx) error {
	msg, err := h.d.HM30.ReceiveData(c.UserContext())
	if err != nil {
		return fail(err)
	}
	if msg == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(msg)
}

func (h *hm30Handler) handleAutoRefresh(c *fiber.Ctx) error {
	var req AutoRefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	h.d.HM30.SetAutoRefresh(req.Enabled)
	return c.JSON(fiber.Map{"enabled": h.d.Store.HM30AutoRefresh.Get()})
}

func (h *hm30Handler) handleMessages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"messages":     h.d.Store.HM30Messages.Get(),
		"last_message": h.d.Store.HM30LastMessage.Get(),
	})
}

func (h *hm30Handler) handleClearMessages(c *fiber.Ctx) error {
	h.d.HM30.ClearHistory()
	return c.SendStatus(fiber.StatusNoContent)
}
