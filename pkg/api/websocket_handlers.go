package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/console/pkg/log"
)

// VideoStreamer serves camera frames on a websocket.
type VideoStreamer interface {
	StreamHandler(conn *websocket.Conn)
}

// RegisterWebSocketRoutes registers /ws/control and, when video is not nil,
// /ws/video/:camera.
func RegisterWebSocketRoutes(app *fiber.App, console Console, video VideoStreamer, logger customlog.Logger) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/control", websocket.New(func(conn *websocket.Conn) {
		ControlWebSocketHandler(conn, logger, console)
	}))
	if video != nil {
		app.Get("/ws/video/:camera", websocket.New(video.StreamHandler))
	}
	logger.Infof("Registered websocket endpoints under /ws")
}

// ControlWebSocketHandler applies operator input events read from conn and
// answers each one with the current telemetry. Closing the socket releases
// every held control and ends any joystick drag.
func ControlWebSocketHandler(conn *websocket.Conn, logger customlog.Logger, console Console) {
	logger.Infof("Control WebSocket connected: %s", conn.RemoteAddr())
	defer func() {
		console.Blur()
		logger.Infof("Control WebSocket disconnected: %s", conn.RemoteAddr())
	}()

	var (
		mt  int
		msg []byte
		err error
	)
	for {
		if mt, msg, err = conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("Control WS read error: %v", err)
			} else if err != websocket.ErrCloseSent && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				logger.Infof("Control WS connection closed: %v", err)
			} else {
				logger.Infof("Control WS connection closed normally.")
			}
			return
		}

		if mt != websocket.TextMessage {
			logger.Infof("Ignoring non-text Control WS message type: %d", mt)
			continue
		}

		var ev InputEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			logger.Warnf("Failed to unmarshal input event from WS: %v. Message: %s", err, string(msg))
			continue
		}

		if err := ApplyEvent(console, ev); err != nil {
			logger.Warnf("Rejected input event from WS: %v", err)
			if werr := conn.WriteJSON(fiber.Map{"error": err.Error()}); werr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(console.Telemetry()); err != nil {
			logger.Infof("Control WS write failed: %v", err)
			return
		}
	}
}

// ApplyEvent maps one input event onto the console.
func ApplyEvent(console Console, ev InputEvent) error {
	switch ev.Type {
	case EventPress, EventRelease, EventLeave:
		if ev.ID == "" {
			return fmt.Errorf("%s event without id", ev.Type)
		}
		switch ev.Type {
		case EventPress:
			console.Press(ev.ID)
		case EventRelease:
			console.Release(ev.ID)
		default:
			console.Leave(ev.ID)
		}
	case EventBlur:
		console.Blur()
	case EventJoystickBegin:
		if !console.JoystickBegin(ev.X, ev.Y) {
			return errors.New("joystick is disabled while disconnected")
		}
	case EventJoystickMove:
		console.JoystickMove(ev.X, ev.Y)
	case EventJoystickEnd:
		console.JoystickEnd()
	case EventConnect:
		console.Connect(ev.URL)
	case EventDisconnect:
		console.Disconnect()
	case EventStatus:
	default:
		return fmt.Errorf("unknown event type '%s'", ev.Type)
	}
	return nil
}
