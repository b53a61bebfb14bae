package bridge

import "time"

// State is the lifecycle state of the bridge connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Status is a snapshot of the connection handed to status listeners.
type Status struct {
	State        State     `json:"state"`
	Reason       string    `json:"reason,omitempty"`
	URL          string    `json:"url,omitempty"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Generation   uint64    `json:"generation"`
	Since        time.Time `json:"since"`
}

// Connected reports whether the snapshot is in the connected state.
func (s Status) Connected() bool {
	return s.State == StateConnected
}

// StatusListener observes connection state changes.
type StatusListener func(Status)
