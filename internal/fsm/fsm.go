// Package fsm defines the voice dictation state machine transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
)

const (
	EventStart    Event = "start"
	EventStop     Event = "stop"
	EventFinalize Event = "finalize"
	EventFail     Event = "fail"
	EventDispose  Event = "dispose"
)

// Transition returns the state reached by applying event to current.
// Invalid edges leave the state unchanged and return an error.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle, StateListening, StateProcessing:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	if event == EventDispose {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventStop:
			return StateProcessing, nil
		case EventFail:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default: // StateProcessing
		switch event {
		case EventFinalize, EventFail:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	}
}

// Busy reports whether a state owns an active recognition attempt.
func Busy(state State) bool {
	return state == StateListening || state == StateProcessing
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
