package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := map[[2]State]bool{
		{StateNotInitialized, StateInitializing}: true,
		{StateNotInitialized, StateUnavailable}:  true,
		{StateInitializing, StateReady}:          true,
		{StateInitializing, StateRunning}:        true,
		{StateInitializing, StatePaused}:         true,
		{StateInitializing, StateFailed}:         true,
		{StateReady, StateRunning}:               true,
		{StateReady, StatePaused}:                true,
		{StateReady, StateInterrupted}:           true,
		{StateReady, StateFailed}:                true,
		{StateRunning, StateReady}:               true,
		{StateRunning, StatePaused}:              true,
		{StateRunning, StateInterrupted}:         true,
		{StateRunning, StateRelocalizing}:        true,
		{StateRunning, StateInitializing}:        true,
		{StateRunning, StateFailed}:              true,
		{StatePaused, StateRunning}:              true,
		{StatePaused, StateFailed}:               true,
		{StateInterrupted, StateReady}:           true,
		{StateInterrupted, StateRunning}:         true,
		{StateInterrupted, StateInitializing}:    true,
		{StateInterrupted, StateFailed}:          true,
		{StateRelocalizing, StateRunning}:        true,
		{StateRelocalizing, StateInitializing}:   true,
		{StateRelocalizing, StateFailed}:         true,
		{StateFailed, StateInitializing}:         true,
		{StateFailed, StateUnavailable}:          true,
		{StateUnavailable, StateNotInitialized}:  true,
	}

	for _, from := range States {
		for _, to := range States {
			want := legal[[2]State{from, to}]
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_UnknownState(t *testing.T) {
	assert.False(t, CanTransition("bogus", StateRunning))
	assert.False(t, CanTransition(StateRunning, "bogus"))
}

func TestStateValid(t *testing.T) {
	for _, s := range States {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, State("bogus").Valid())
}

func TestNoSelfEdges(t *testing.T) {
	for _, s := range States {
		assert.False(t, CanTransition(s, s), s)
	}
}
