package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	steps := []struct {
		event Event
		want  State
	}{
		{EventStart, StatePreListening},
		{EventSpeechStart, StateListening},
		{EventConfirm, StateProcessing},
		{EventProcessed, StateClosing},
		{EventCloseTimeout, StateIdle},
	}

	current := StateIdle
	for _, step := range steps {
		next, err := Transition(current, step.event)
		require.NoError(t, err)
		require.Equal(t, step.want, next)
		current = next
	}
}

func TestTransitionPreListeningTimeoutAdvancesToListening(t *testing.T) {
	next, err := Transition(StatePreListening, EventPreListeningTimeout)
	require.NoError(t, err)
	require.Equal(t, StateListening, next)
}

func TestTransitionConfirmDuringPreListeningAdvancesToProcessing(t *testing.T) {
	next, err := Transition(StatePreListening, EventConfirm)
	require.NoError(t, err)
	require.Equal(t, StateProcessing, next)
}

func TestTransitionStopCancelsFromListeningOrPreListening(t *testing.T) {
	next, err := Transition(StateListening, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateClosing, next)

	next, err = Transition(StatePreListening, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateClosing, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	cases := []struct {
		name  string
		state State
		event Event
	}{
		{"start while pre-listening", StatePreListening, EventStart},
		{"confirm while idle", StateIdle, EventConfirm},
		{"stop while processing", StateProcessing, EventStop},
		{"speech start while closing", StateClosing, EventSpeechStart},
		{"processed while listening", StateListening, EventProcessed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Error(t, err)
			require.Equal(t, tc.state, next)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	_, err := Transition(State("bogus"), EventStart)
	require.Error(t, err)
}
