package session

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestLifecycleHappyPath(t *testing.T) {
	c := qt.New(t)
	state := StateIdle
	for _, event := range []Event{
		EventConnect, EventScan, EventVerify,
		EventSelect, EventSign, EventSubmit, EventComplete,
	} {
		next, err := Step(state, event)
		c.Assert(err, qt.IsNil, qt.Commentf("event %s from %s", event, state))
		state = next
	}
	c.Assert(state, qt.Equals, StateCompleted)
	c.Assert(state.Terminal(), qt.IsTrue)
}

func TestStepRejectsSkips(t *testing.T) {
	c := qt.New(t)
	// cannot sign before authenticating
	_, err := Step(StateConnected, EventSign)
	c.Assert(err, qt.IsNotNil)
	// cannot scan twice
	_, err = Step(StateScanned, EventScan)
	c.Assert(err, qt.IsNotNil)
	// cannot submit from idle
	_, err = Step(StateIdle, EventSubmit)
	c.Assert(err, qt.IsNotNil)
}

func TestFailFromAnyNonTerminal(t *testing.T) {
	c := qt.New(t)
	for _, state := range []State{
		StateIdle, StateConnected, StateScanned,
		StateAuthenticated, StateSelected, StateSigned, StateSubmitted,
	} {
		next, err := Step(state, EventFail)
		c.Assert(err, qt.IsNil)
		c.Assert(next, qt.Equals, StateFailed)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	c := qt.New(t)
	for _, state := range []State{StateCompleted, StateFailed} {
		for _, event := range []Event{EventConnect, EventFail, EventComplete} {
			_, err := Step(state, event)
			c.Assert(err, qt.IsNotNil, qt.Commentf("event %s from %s", event, state))
		}
	}
}
