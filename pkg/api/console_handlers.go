package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/console/domain/teleop"
	"github.com/open-teleop/console/pkg/input"
	customlog "github.com/open-teleop/console/pkg/log"
)

// Console is the operator session the API drives. Every endpoint maps onto
// exactly one call.
type Console interface {
	Connect(url string)
	Disconnect()
	Press(id string) input.Directive
	Release(id string) input.Directive
	Leave(id string) input.Directive
	Blur()
	JoystickBegin(x, y float64) bool
	JoystickMove(x, y float64)
	JoystickEnd()
	Telemetry() teleop.Telemetry
}

// ConsoleHandler holds dependencies for the operator endpoints.
type ConsoleHandler struct {
	console Console
	logger  customlog.Logger
}

// NewConsoleHandler creates a new handler for operator endpoints.
func NewConsoleHandler(console Console, logger customlog.Logger) *ConsoleHandler {
	if console == nil {
		panic("Console cannot be nil in NewConsoleHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConsoleHandler")
	}
	return &ConsoleHandler{
		console: console,
		logger:  logger,
	}
}

// RegisterConsoleRoutes registers the operator API endpoints with the Fiber app.
func RegisterConsoleRoutes(app *fiber.App, console Console, logger customlog.Logger) {
	h := NewConsoleHandler(console, logger)

	apiGroup := app.Group("/api/v1/console")
	apiGroup.Get("/status", h.handleStatus)
	apiGroup.Post("/connect", h.handleConnect)
	apiGroup.Post("/disconnect", h.handleDisconnect)

	inputGroup := apiGroup.Group("/input")
	inputGroup.Post("/press", h.handleKey(console.Press))
	inputGroup.Post("/release", h.handleKey(console.Release))
	inputGroup.Post("/leave", h.handleKey(console.Leave))
	inputGroup.Post("/blur", h.handleBlur)

	joystickGroup := apiGroup.Group("/joystick")
	joystickGroup.Post("/begin", h.handleJoystickBegin)
	joystickGroup.Post("/move", h.handleJoystickMove)
	joystickGroup.Post("/end", h.handleJoystickEnd)

	logger.Infof("Registered console API endpoints under /api/v1/console")
}

func (h *ConsoleHandler) handleStatus(c *fiber.Ctx) error {
	return c.JSON(h.console.Telemetry())
}

func (h *ConsoleHandler) handleConnect(c *fiber.Ctx) error {
	var req ConnectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid connect request body.",
			})
		}
	}

	h.logger.Debugf("Handling connect request (url=%q)", req.URL)
	h.console.Connect(req.URL)
	return c.Status(http.StatusAccepted).JSON(h.console.Telemetry().Connection)
}

func (h *ConsoleHandler) handleDisconnect(c *fiber.Ctx) error {
	h.console.Disconnect()
	return c.JSON(h.console.Telemetry().Connection)
}

func (h *ConsoleHandler) handleKey(apply func(id string) input.Directive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req InputRequest
		if err := c.BodyParser(&req); err != nil || req.ID == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Request body must carry a key or button id.",
			})
		}

		d := apply(req.ID)
		return c.JSON(fiber.Map{
			"directive":      d.String(),
			"active_control": d.Label(),
		})
	}
}

func (h *ConsoleHandler) handleBlur(c *fiber.Ctx) error {
	h.console.Blur()
	return c.SendStatus(http.StatusNoContent)
}

func (h *ConsoleHandler) handleJoystickBegin(c *fiber.Ctx) error {
	var req PointRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body must carry x and y.",
		})
	}

	if !h.console.JoystickBegin(req.X, req.Y) {
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"error": "Joystick is disabled while disconnected.",
		})
	}
	return c.JSON(h.console.Telemetry().Joystick)
}

func (h *ConsoleHandler) handleJoystickMove(c *fiber.Ctx) error {
	var req PointRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body must carry x and y.",
		})
	}

	h.console.JoystickMove(req.X, req.Y)
	return c.JSON(h.console.Telemetry().Joystick)
}

func (h *ConsoleHandler) handleJoystickEnd(c *fiber.Ctx) error {
	h.console.JoystickEnd()
	return c.SendStatus(http.StatusNoContent)
}
