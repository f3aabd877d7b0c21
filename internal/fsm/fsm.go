// Package fsm implements the session state machine: the five states a
// dictation session moves through from activation to idle, and the
// transition table that governs them.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StatePreListening State = "pre_listening"
	StateListening    State = "listening"
	StateProcessing   State = "processing"
	StateClosing      State = "closing"
)

const (
	// EventStart begins a session from Idle.
	EventStart Event = "start"
	// EventSpeechStart is the first VAD SpeechStart during PreListening.
	EventSpeechStart Event = "speech_start"
	// EventPreListeningTimeout fires PRE_LISTENING_MS after EventStart.
	EventPreListeningTimeout Event = "pre_listening_timeout"
	// EventConfirm requests the final pass and emission.
	EventConfirm Event = "confirm"
	// EventStop cancels the session without emitting.
	EventStop Event = "stop"
	// EventProcessed fires once C5/C6/C7 have finished (or failed with a fallback).
	EventProcessed Event = "processed"
	// EventCloseTimeout is the hard Closing timer, forcing a reset.
	EventCloseTimeout Event = "close_timeout"
)

// Transition returns the next state for (current, event), or an error if
// the event is not valid from current. Callers are expected to treat an
// invalid transition as a no-op: log it and keep the prior state.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StatePreListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePreListening:
		switch event {
		case EventSpeechStart, EventPreListeningTimeout:
			return StateListening, nil
		case EventConfirm:
			return StateProcessing, nil
		case EventStop:
			return StateClosing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventConfirm:
			return StateProcessing, nil
		case EventStop:
			return StateClosing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventProcessed:
			return StateClosing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosing:
		switch event {
		case EventCloseTimeout:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
