package api

import (
	"github.com/gofiber/fiber/v2"
)

func registerROSRoutes(r fiber.Router, d Deps) {
	r.Post("/connect", func(c *fiber.Ctx) error {
		var req RosConnectRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest("invalid request body: " + err.Error())
			}
		}
		if err := d.ROS.Connect(req.URL); err != nil {
			return fail(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"connected": d.Store.RosConnected.Get(),
			"url":       urlOrStored(req.URL, d),
		})
	})

	r.Post("/disconnect", func(c *fiber.Ctx) error {
		d.ROS.Disconnect()
		return c.JSON(fiber.Map{"connected": false})
	})

	r.Get("/nodes", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"nodes": d.Store.RosNodes.Get()})
	})

	r.Post("/nodes/refresh", func(c *fiber.Ctx) error {
		if d.Nodes == nil {
			return fiber.NewError(fiber.StatusNotImplemented, "node listing is not enabled")
		}
		return c.JSON(fiber.Map{"nodes": d.Nodes.Refresh(c.UserContext())})
	})

	r.Get("/topics", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"topics": d.ROS.Registry().GetTopicStats()})
	})

	r.Delete("/path", func(c *fiber.Ctx) error {
		d.ROS.ClearPath()
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func urlOrStored(url string, d Deps) string {
	if url != "" {
		return url
	}
	return d.Store.RosURL.Get()
}
