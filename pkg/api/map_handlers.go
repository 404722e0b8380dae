package api

import (
	"github.com/gofiber/fiber/v2"
)

func registerMapRoutes(r fiber.Router, d Deps) {
	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"marker":   d.Store.MapMarker.Get(),
			"viewport": d.Store.MapViewport.Get(),
			"path":     d.Store.PathHistory.Get(),
			"targets":  d.Store.Targets.Get(),
		})
	})

	r.Get("/style", func(c *fiber.Ctx) error {
		style, err := d.Map.Style()
		if err != nil {
			return fail(err)
		}
		return c.JSON(style)
	})

	r.Post("/fly-to", func(c *fiber.Ctx) error {
		vp, err := d.Map.FlyTo()
		if err != nil {
			return fail(err)
		}
		return c.JSON(vp)
	})
}
