// Package input turns operator input into motion intent: discrete signals
// (keys, on-screen buttons) resolve to one Directive, and the virtual
// joystick turns pointer drags into a bounded velocity.
package input

// Signal is a logical control an identifier can be mapped to.
type Signal int

const (
	SignalForward Signal = iota
	SignalBackward
	SignalLeft
	SignalRight
	SignalStop
	SignalEmergencyStop
	SignalLift
	SignalLower
)

var signalNames = map[Signal]string{
	SignalForward:       "forward",
	SignalBackward:      "backward",
	SignalLeft:          "left",
	SignalRight:         "right",
	SignalStop:          "stop",
	SignalEmergencyStop: "estop",
	SignalLift:          "lift",
	SignalLower:         "lower",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSignal maps a signal name (as used in the keymap config) to a Signal.
func ParseSignal(name string) (Signal, bool) {
	for s, n := range signalNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Directive is the single motion intent resolved from the active signals.
type Directive int

const (
	DirectiveNone Directive = iota
	DirectiveForward
	DirectiveBackward
	DirectiveLeft
	DirectiveRight
	DirectiveForwardLeft
	DirectiveForwardRight
	DirectiveBackwardLeft
	DirectiveBackwardRight
	DirectiveStop
	DirectiveEmergencyStop
	DirectiveActuatorUp
	DirectiveActuatorDown
)

var directiveNames = [...]string{
	DirectiveNone:          "none",
	DirectiveForward:       "forward",
	DirectiveBackward:      "backward",
	DirectiveLeft:          "left",
	DirectiveRight:         "right",
	DirectiveForwardLeft:   "forward-left",
	DirectiveForwardRight:  "forward-right",
	DirectiveBackwardLeft:  "backward-left",
	DirectiveBackwardRight: "backward-right",
	DirectiveStop:          "stop",
	DirectiveEmergencyStop: "emergency-stop",
	DirectiveActuatorUp:    "actuator-up",
	DirectiveActuatorDown:  "actuator-down",
}

func (d Directive) String() string {
	if d < 0 || int(d) >= len(directiveNames) {
		return "unknown"
	}
	return directiveNames[d]
}

// Label is the operator-facing description of the active control.
func (d Directive) Label() string {
	switch d {
	case DirectiveNone:
		return "idle"
	case DirectiveStop:
		return "stop pressed"
	case DirectiveEmergencyStop:
		return "emergency stop"
	}
	return d.String()
}

// IsMotion reports whether the directive drives the base.
func (d Directive) IsMotion() bool {
	return d >= DirectiveForward && d <= DirectiveBackwardRight
}

// Resolve derives the Directive from the full set of active signals.
// The result depends only on set membership, never on press order.
func Resolve(active map[Signal]bool) Directive {
	switch {
	case active[SignalEmergencyStop]:
		return DirectiveEmergencyStop
	case active[SignalStop]:
		return DirectiveStop
	case active[SignalLift]:
		return DirectiveActuatorUp
	case active[SignalLower]:
		return DirectiveActuatorDown
	}

	fwd, back := active[SignalForward], active[SignalBackward]
	left, right := active[SignalLeft], active[SignalRight]

	switch {
	case fwd && left:
		return DirectiveForwardLeft
	case fwd && right:
		return DirectiveForwardRight
	case back && left:
		return DirectiveBackwardLeft
	case back && right:
		return DirectiveBackwardRight
	case fwd:
		return DirectiveForward
	case back:
		return DirectiveBackward
	case left:
		return DirectiveLeft
	case right:
		return DirectiveRight
	}
	return DirectiveNone
}
