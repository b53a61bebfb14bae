package api

// Control websocket event types.
const (
	EventPress         = "press"
	EventRelease       = "release"
	EventLeave         = "leave"
	EventBlur          = "blur"
	EventJoystickBegin = "joystick_begin"
	EventJoystickMove  = "joystick_move"
	EventJoystickEnd   = "joystick_end"
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventStatus        = "status"
)

// InputEvent is one operator event on the control websocket. ID carries the
// key code or button id; X and Y carry pointer coordinates on the joystick.
type InputEvent struct {
	Type string  `json:"type"`
	ID   string  `json:"id,omitempty"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	URL  string  `json:"url,omitempty"`
}

// ConnectRequest is the body of POST /connect. An empty URL uses the
// configured bridge URL.
type ConnectRequest struct {
	URL string `json:"url"`
}

// InputRequest is the body of the key and button endpoints.
type InputRequest struct {
	ID string `json:"id"`
}

// PointRequest is the body of the joystick endpoints.
type PointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
