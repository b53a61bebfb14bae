package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/open-teleop/console/pkg/config"
	customlog "github.com/open-teleop/console/pkg/log"
)

// ConfigHandler serves the effective console configuration.
type ConfigHandler struct {
	cfg    *config.Config
	logger customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(cfg *config.Config, logger customlog.Logger) *ConfigHandler {
	if cfg == nil {
		panic("Config cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, cfg *config.Config, logger customlog.Logger) {
	h := NewConfigHandler(cfg, logger)

	apiGroup := app.Group("/api/v1/config")
	apiGroup.Get("/console", h.handleGetConsoleConfig)

	logger.Infof("Registered console configuration API endpoints under /api/v1/config")
}

// handleGetConsoleConfig returns the loaded configuration as YAML with
// secrets removed.
func (h *ConfigHandler) handleGetConsoleConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/config/console")

	redacted := *h.cfg
	if redacted.Relay.MQTTPassword != "" {
		redacted.Relay.MQTTPassword = "********"
	}

	yamlData, err := yaml.Marshal(&redacted)
	if err != nil {
		h.logger.Errorf("Failed to encode console config: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to encode configuration: %v", err),
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}
