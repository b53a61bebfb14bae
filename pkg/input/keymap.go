package input

import (
	"fmt"
	"strings"
)

// KeyMap maps lower-cased key codes and button ids to signals.
type KeyMap map[string]Signal

// DefaultKeyMap returns the keyboard layout plus the logical button ids.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		"w":          SignalForward,
		"arrowup":    SignalForward,
		"s":          SignalBackward,
		"arrowdown":  SignalBackward,
		"a":          SignalLeft,
		"arrowleft":  SignalLeft,
		"d":          SignalRight,
		"arrowright": SignalRight,
		" ":          SignalStop,
		"space":      SignalStop,
		"e":          SignalEmergencyStop,
		"l":          SignalLift,
		"k":          SignalLower,

		"forward":  SignalForward,
		"backward": SignalBackward,
		"left":     SignalLeft,
		"right":    SignalRight,
		"stop":     SignalStop,
		"estop":    SignalEmergencyStop,
		"lift":     SignalLift,
		"lower":    SignalLower,
	}
}

// NewKeyMap returns the default map extended with overrides of the form
// identifier -> signal name.
func NewKeyMap(overrides map[string]string) (KeyMap, error) {
	km := DefaultKeyMap()
	for id, name := range overrides {
		sig, ok := ParseSignal(strings.ToLower(name))
		if !ok {
			return nil, fmt.Errorf("unknown signal '%s' for key '%s'", name, id)
		}
		km[Normalize(id)] = sig
	}
	return km, nil
}

// Lookup returns the signal bound to id.
func (k KeyMap) Lookup(id string) (Signal, bool) {
	sig, ok := k[Normalize(id)]
	return sig, ok
}

// Normalize lower-cases an identifier. A lone space is kept as is.
func Normalize(id string) string {
	if id == " " {
		return id
	}
	return strings.ToLower(strings.TrimSpace(id))
}
