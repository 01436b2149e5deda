package session

import "fmt"

// State represents the lifecycle state of a Session.
type State int

const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected State = iota
	// StateConnecting indicates a dial is in progress.
	StateConnecting
	// StateConnected indicates the TCP link is up but no login has completed.
	StateConnected
	// StateAuthenticated indicates the remote shell prompt was reached and the
	// session is idle.
	StateAuthenticated
	// StateExecuting indicates a command holds exclusive read access.
	StateExecuting
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAuthenticated:
		return "Authenticated"
	case StateExecuting:
		return "Executing"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}
