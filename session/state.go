// Package session orchestrates one voting session end to end: terminal
// attach, biometric authentication, ballot encryption, blind signing,
// eligibility proving and ledger submission. The lifecycle is an explicit
// state machine; every transition is validated before any side effect runs,
// and the terminal is securely erased before a session reaches a terminal
// state.
package session

import "fmt"

// State is a voting session lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateConnected     State = "connected"
	StateScanned       State = "scanned"
	StateAuthenticated State = "authenticated"
	StateSelected      State = "selected"
	StateSigned        State = "signed"
	StateSubmitted     State = "submitted"
	// terminal states, reached only after the secure erase completed
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Event is a state machine input.
type Event string

const (
	EventConnect  Event = "connect"
	EventScan     Event = "scan"
	EventVerify   Event = "verify"
	EventSelect   Event = "select"
	EventSign     Event = "sign"
	EventSubmit   Event = "submit"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
)

// ErrInvalidTransition is returned when an event is not legal in the current
// state.
type ErrInvalidTransition struct {
	From  State
	Event Event
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("event %q is not valid in state %q", e.Event, e.From)
}

// transitions is the full lifecycle table. EventFail is legal from every
// non-terminal state and handled in Step directly.
var transitions = map[State]map[Event]State{
	StateIdle:          {EventConnect: StateConnected},
	StateConnected:     {EventScan: StateScanned},
	StateScanned:       {EventVerify: StateAuthenticated},
	StateAuthenticated: {EventSelect: StateSelected},
	StateSelected:      {EventSign: StateSigned},
	StateSigned:        {EventSubmit: StateSubmitted},
	StateSubmitted:     {EventComplete: StateCompleted},
}

// Step applies an event to a state and returns the next state. The table is
// strict: skipping a step, repeating one, or touching a terminal state is an
// ErrInvalidTransition.
func Step(from State, event Event) (State, error) {
	if from.Terminal() {
		return from, &ErrInvalidTransition{From: from, Event: event}
	}
	if event == EventFail {
		return StateFailed, nil
	}
	next, ok := transitions[from][event]
	if !ok {
		return from, &ErrInvalidTransition{From: from, Event: event}
	}
	return next, nil
}
