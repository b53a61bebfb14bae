package teleop

import (
	"sort"
	"sync"
	"time"

	"github.com/open-teleop/console/pkg/bridge"
	"github.com/open-teleop/console/pkg/command"
	"github.com/open-teleop/console/pkg/config"
	"github.com/open-teleop/console/pkg/input"
	customlog "github.com/open-teleop/console/pkg/log"
	"github.com/open-teleop/console/pkg/rosmsg"
)

// Connection is the part of the bridge manager the session drives.
type Connection interface {
	Connect(url string)
	Disconnect()
	Status() bridge.Status
	Stats() bridge.Stats
	OnStatus(listener bridge.StatusListener)
	PublishTwist(twist rosmsg.Twist) bool
	PublishActuator(position float64) bool
}

// JoystickState describes the virtual joystick for the operator UI.
type JoystickState struct {
	Active    bool    `json:"active"`
	OffsetX   float64 `json:"offset_x"`
	OffsetY   float64 `json:"offset_y"`
	MaxRadius float64 `json:"max_radius"`
	Linear    float64 `json:"linear"`
	Angular   float64 `json:"angular"`
}

// Telemetry is the operator-facing snapshot of the session.
type Telemetry struct {
	Connection       bridge.Status `json:"connection"`
	ConnectionError  string        `json:"connection_error,omitempty"`
	Speed            float64       `json:"speed"`
	Steering         float64       `json:"steering"`
	ActiveControl    string        `json:"active_control"`
	Directive        string        `json:"directive"`
	HeldKeys         []string      `json:"held_keys"`
	Joystick         JoystickState `json:"joystick"`
	ActuatorPosition float64       `json:"actuator_position"`
	MessagesSent     int64         `json:"messages_sent"`
	LastMessageTime  *time.Time    `json:"last_message_time,omitempty"`
}

// Session is one operator driving one vehicle. Input events from every
// source are serialized by the session lock; the actuator position survives
// reconnects.
type Session struct {
	mu         sync.Mutex
	conn       Connection
	translator *command.Translator
	actuator   *command.Actuator
	aggregator *input.Aggregator
	joystick   *input.Joystick
	logger     customlog.Logger
}

// NewSession wires the input pipeline onto conn. Commands go through pub,
// which defaults to conn itself.
func NewSession(cfg *config.Config, conn Connection, pub command.Publisher, logger customlog.Logger) (*Session, error) {
	if conn == nil {
		panic("Connection cannot be nil in NewSession")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewSession")
	}
	if pub == nil {
		pub = conn
	}

	keys, err := input.NewKeyMap(cfg.KeyMap)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:     conn,
		actuator: command.NewActuator(cfg.Actuator),
		logger:   logger,
	}
	s.translator = command.NewTranslator(pub, cfg.Drive, s.actuator, logger)
	s.aggregator = input.NewAggregator(keys, s.translator)
	s.joystick = input.NewJoystick(cfg.Joystick.Width, cfg.Joystick.Height, cfg.Joystick.Margin,
		func() bool { return conn.Status().Connected() },
		s.translator.Joystick)

	conn.OnStatus(s.handleStatus)
	return s, nil
}

// Connect starts a connection attempt. An empty url uses the configured one.
func (s *Session) Connect(url string) {
	s.conn.Connect(url)
}

// Disconnect drops the connection. Held controls are cleared by the
// resulting status change.
func (s *Session) Disconnect() {
	s.conn.Disconnect()
}

// Press handles a key or button going down. Presses are ignored while not
// connected; releases always pass through.
func (s *Session) Press(id string) input.Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.conn.Status().Connected() {
		return s.aggregator.Current()
	}
	return s.aggregator.Press(id)
}

// Release handles a key or button going up.
func (s *Session) Release(id string) input.Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregator.Release(id)
}

// Leave handles the pointer leaving a held button.
func (s *Session) Leave(id string) input.Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregator.Leave(id)
}

// Blur handles focus loss: every held control is released and any joystick
// drag ends.
func (s *Session) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// JoystickBegin starts a joystick drag. It reports false while disconnected.
func (s *Session) JoystickBegin(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joystick.Begin(x, y)
}

// JoystickMove moves the knob of an active drag.
func (s *Session) JoystickMove(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joystick.Update(x, y)
}

// JoystickEnd releases the joystick, which commands a zero velocity.
func (s *Session) JoystickEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joystick.End()
}

// Telemetry returns a snapshot for the operator UI.
func (s *Session) Telemetry() Telemetry {
	status := s.conn.Status()
	stats := s.conn.Stats()

	s.mu.Lock()
	defer s.mu.Unlock()

	speed, steering := s.translator.Last()
	directive := s.aggregator.Current()
	held := s.aggregator.Held()
	sort.Strings(held)

	offset := s.joystick.Offset()
	velocity := s.joystick.Velocity()

	t := Telemetry{
		Connection:    status,
		Speed:         speed,
		Steering:      steering,
		ActiveControl: directive.Label(),
		Directive:     directive.String(),
		HeldKeys:      held,
		Joystick: JoystickState{
			Active:    s.joystick.Dragging(),
			OffsetX:   offset.X(),
			OffsetY:   offset.Y(),
			MaxRadius: s.joystick.MaxRadius(),
			Linear:    velocity.Linear,
			Angular:   velocity.Angular,
		},
		ActuatorPosition: s.actuator.Position(),
		MessagesSent:     stats.MessagesSent,
	}
	if t.Joystick.Active {
		t.ActiveControl = "joystick"
	}
	if status.State == bridge.StateFailed {
		t.ConnectionError = status.Reason
	}
	if !stats.LastSent.IsZero() {
		last := stats.LastSent
		t.LastMessageTime = &last
	}
	return t
}

func (s *Session) handleStatus(st bridge.Status) {
	if st.Connected() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debugf("Connection %s, clearing held controls", st.State)
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.aggregator.Clear()
	if s.joystick.Dragging() {
		s.joystick.End()
	}
}
