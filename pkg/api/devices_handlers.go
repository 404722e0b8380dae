package api

import (
	"github.com/gofiber/fiber/v2"
)

func registerDeviceRoutes(r fiber.Router, d Deps) {
	r.Get("/", func(c *fiber.Ctx) error {
		list := d.Store.Devices.Get()
		return c.JSON(fiber.Map{
			"devices":  list,
			"count":    len(list),
			"error":    d.Store.DeviceError.Get(),
			"watching": d.Devices.IsOpen(),
		})
	})

	r.Post("/refresh", func(c *fiber.Ctx) error {
		list, err := d.Devices.Refresh(c.UserContext())
		if err != nil {
			return fail(err)
		}
		return c.JSON(fiber.Map{"devices": list, "count": len(list)})
	})

	// The device panel opens and closes polling.
	r.Post("/watch", func(c *fiber.Ctx) error {
		d.Devices.Open()
		return c.JSON(fiber.Map{"watching": true})
	})
	r.Delete("/watch", func(c *fiber.Ctx) error {
		d.Devices.Close()
		return c.JSON(fiber.Map{"watching": false})
	})
}
