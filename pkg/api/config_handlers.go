package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/groundstation/pkg/log"
	"github.com/open-teleop/groundstation/services"
)

// SettingsHandler holds dependencies for the settings endpoints.
type SettingsHandler struct {
	settings services.SettingsService
	logger   customlog.Logger
}

// NewSettingsHandler creates a new handler for settings endpoints.
func NewSettingsHandler(settings services.SettingsService, logger customlog.Logger) *SettingsHandler {
	if settings == nil {
		panic("SettingsService cannot be nil in NewSettingsHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewSettingsHandler")
	}
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

// RegisterSettingsRoutes registers the settings endpoints under /api/v1.
func RegisterSettingsRoutes(app *fiber.App, settings services.SettingsService, logger customlog.Logger) {
	h := NewSettingsHandler(settings, logger)

	v1 := app.Group("/api/v1")
	v1.Get("/settings", h.handleGetSettings)
	v1.Put("/settings", h.handleUpdateSettings)

	logger.Infof("Registered settings API endpoints under /api/v1")
}

func isYAML(contentType string) bool {
	return strings.Contains(contentType, "yaml")
}

// handleGetSettings returns the settings as JSON, or YAML when the client
// accepts it.
func (h *SettingsHandler) handleGetSettings(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/settings")

	if isYAML(c.Get(fiber.HeaderAccept)) {
		yamlData, err := h.settings.GetSettingsYAML()
		if err != nil {
			h.logger.Errorf("Failed to encode settings as YAML: %v", err)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": fmt.Sprintf("Failed to retrieve settings: %v", err),
			})
		}
		c.Set(fiber.HeaderContentType, "application/x-yaml")
		return c.Send(yamlData)
	}
	return c.JSON(h.settings.GetSettings())
}

// handleUpdateSettings accepts a YAML or JSON body. Absent fields keep
// their current values.
func (h *SettingsHandler) handleUpdateSettings(c *fiber.Ctx) error {
	h.logger.Debugf("Handling PUT request for /api/v1/settings")

	body := c.Body()
	if len(body) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	var err error
	if isYAML(c.Get(fiber.HeaderContentType)) {
		err = h.settings.UpdateSettingsYAML(body)
	} else {
		next := h.settings.GetSettings()
		if jsonErr := json.Unmarshal(body, &next); jsonErr != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Invalid JSON body: %v", jsonErr),
			})
		}
		err = h.settings.UpdateSettings(next)
	}

	if err != nil {
		h.logger.Errorf("Failed to update settings: %v", err)
		if services.IsValidationError(err) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Settings update failed: %v", err),
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during settings update: %v", err),
		})
	}

	h.logger.Infof("Settings updated through API")
	return c.JSON(h.settings.GetSettings())
}
