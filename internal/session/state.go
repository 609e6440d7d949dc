package session

// State is a phase of the command state machine.
//
// Transitions:
//
//	Idle → Connecting → Connected → Sending → Receiving → Done
//
// A recoverable failure sends the machine back to Connecting for the next
// attempt (including the immediate re-run after a UDP to TCP downgrade).
// Failed is entered from whichever state the machine was in when the call
// gives up.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateSending
	StateReceiving
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateConnected:  "connected",
	StateSending:    "sending",
	StateReceiving:  "receiving",
	StateDone:       "done",
	StateFailed:     "failed",
}

// String returns the lower-case state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
