// Package session implements the BGP session state machine and the
// TCP byte-stream reassembly loop of spec ยง4.5: one accepted connection
// at a time, OPEN/KEEPALIVE handshake with 2-byte/4-byte AS
// reconciliation, UPDATE dispatch into internal/update, and full RIB
// teardown on any terminal event.
//
// Grounded in transitorykris-kbgp/fsm.go for the state-constant naming
// and switch-based event dispatch shape, and in the teacher's
// cmd/rib-ingester/main.go for logging, context-cancellation shutdown,
// and the accept/serve lifecycle.
package session

// State is one of the four FSM states spec ยง4.5 names.
type State int

const (
	Idle State = iota
	Active
	OpenSent
	Established
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	case OpenSent:
		return "OpenSent"
	case Established:
		return "Established"
	default:
		return "Unknown"
	}
}
