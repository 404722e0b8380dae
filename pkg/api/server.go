package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-teleop/groundstation/domain/devices"
	"github.com/open-teleop/groundstation/domain/hm30"
	"github.com/open-teleop/groundstation/domain/mapview"
	"github.com/open-teleop/groundstation/pkg/bridge"
	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/pkg/rosbridge"
	"github.com/open-teleop/groundstation/pkg/state"
	"github.com/open-teleop/groundstation/services"
)

// Deps bundles what the routes drive. Nil controllers leave their routes
// unregistered.
type Deps struct {
	Store    *state.Store
	ROS      ROSController
	Nodes    NodeRefresher
	HM30     HM30Controller
	Traffic  TrafficReporter
	Devices  DeviceController
	Map      MapController
	Settings services.SettingsService
	Logger   customlog.Logger
}

// NewApp creates the fiber app with the JSON error handler and the
// access-log and recover middleware.
func NewApp(name string, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})
	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	return app
}

// RegisterRoutes mounts every API route.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "groundstation",
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api := app.Group("/api")
	api.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(d.Store.Snapshot())
	})

	if d.ROS != nil {
		registerROSRoutes(api.Group("/ros"), d)
	}
	if d.HM30 != nil {
		registerHM30Routes(api.Group("/hm30"), d)
	}
	if d.Devices != nil {
		registerDeviceRoutes(api.Group("/devices"), d)
	}
	if d.Map != nil {
		registerMapRoutes(api.Group("/map"), d)
	}
	if d.Settings != nil {
		RegisterSettingsRoutes(app, d.Settings, d.Logger)
	}
	RegisterStateStream(app, d.Store, d.Logger)

	d.Logger.Infof("Registered API routes")
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var hmValidation *hm30.ValidationError
	var hmOperation *hm30.OperationError
	var fetchErr *devices.FetchError
	switch {
	case errors.As(err, &hmValidation), services.IsValidationError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, bridge.ErrUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &hmOperation):
		if hmOperation.Message == bridge.ErrUnavailable.Error() {
			return fiber.StatusServiceUnavailable
		}
		return fiber.StatusBadGateway
	case errors.As(err, &fetchErr):
		if fetchErr.Message == bridge.ErrUnavailable.Error() {
			return fiber.StatusServiceUnavailable
		}
		return fiber.StatusBadGateway
	case errors.Is(err, mapview.ErrNotMounted), errors.Is(err, mapview.ErrNoPosition),
		errors.Is(err, rosbridge.ErrNotConnected):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// fail converts err into a fiber error for customErrorHandler.
func fail(err error) error {
	return fiber.NewError(statusFor(err), err.Error())
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
