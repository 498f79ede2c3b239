package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStates = []State{
	StateIdle,
	StateConfiguring,
	StateRunning,
	StateUnauthorized,
	StateConfigurationFailed,
	StateStopped,
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateIdle, StateConfiguring, true},
		{StateIdle, StateStopped, true},
		{StateIdle, StateRunning, false},
		{StateConfiguring, StateRunning, true},
		{StateConfiguring, StateUnauthorized, true},
		{StateConfiguring, StateConfigurationFailed, true},
		{StateConfiguring, StateStopped, true},
		{StateConfiguring, StateIdle, false},
		{StateRunning, StateStopped, true},
		{StateRunning, StateConfigurationFailed, true},
		{StateRunning, StateUnauthorized, false},
		{StateRunning, StateConfiguring, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, from := range allStates {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStates {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestState_Failed(t *testing.T) {
	assert.True(t, StateUnauthorized.Failed())
	assert.True(t, StateConfigurationFailed.Failed())
	assert.False(t, StateStopped.Failed())
	assert.True(t, StateStopped.Terminal())
	assert.False(t, StateRunning.Terminal())
}
