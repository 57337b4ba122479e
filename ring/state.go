package ring

import (
	"errors"
	"fmt"
)

// State is where a ring context is in its lifecycle.
type State int32

// States of a ring context. A context in StateQueueCreated is idle.
const (
	StateUninitialized State = iota
	StateQueueCreated
	StateSubmitting
	StateWaiting
	StateQueueDestroyed

	StateIdle = StateQueueCreated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateQueueCreated:
		return "Idle"
	case StateSubmitting:
		return "Submitting"
	case StateWaiting:
		return "Waiting"
	case StateQueueDestroyed:
		return "QueueDestroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrIllegalTransition is returned when a transition is not allowed from the
// current state.
var ErrIllegalTransition = errors.New("illegal ring context transition")

var transitions = map[State][]State{
	StateUninitialized: {StateQueueCreated},
	StateQueueCreated:  {StateSubmitting, StateQueueDestroyed},
	StateSubmitting:    {StateWaiting, StateQueueCreated},
	StateWaiting:       {StateQueueCreated},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}
