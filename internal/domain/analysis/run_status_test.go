package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRunStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  RunStatus
	}{
		{name: "uppercase running", input: "RUNNING", want: RunStatusRunning},
		{name: "lowercase running", input: "running", want: RunStatusRunning},
		{name: "queued", input: "QUEUED", want: RunStatusQueued},
		{name: "pausing", input: "pausing", want: RunStatusPausing},
		{name: "paused", input: "PAUSED", want: RunStatusPaused},
		{name: "cancelling", input: "CANCELLING", want: RunStatusCancelling},
		{name: "cancelled", input: "cancelled", want: RunStatusCancelled},
		{name: "completed", input: "COMPLETED", want: RunStatusCompleted},
		{name: "error", input: "ERROR", want: RunStatusError},
		{name: "unknown", input: "EXPLODED", want: RunStatus("")},
		{name: "empty", input: "", want: RunStatus("")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseRunStatus(tt.input))
		})
	}
}

func TestRunStatusClassification(t *testing.T) {
	t.Parallel()

	terminal := []RunStatus{RunStatusCompleted, RunStatusCancelled, RunStatusError}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
		assert.False(t, s.IsTransitional(), "%s should not be transitional", s)
	}

	transitional := []RunStatus{RunStatusQueued, RunStatusPausing, RunStatusCancelling}
	for _, s := range transitional {
		assert.True(t, s.IsTransitional(), "%s should be transitional", s)
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}

	for _, s := range []RunStatus{RunStatusRunning, RunStatusPaused} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
		assert.False(t, s.IsTransitional(), "%s should not be transitional", s)
	}
}

func TestRunStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    RunStatus
		to      RunStatus
		allowed bool
	}{
		{name: "queued to running", from: RunStatusQueued, to: RunStatusRunning, allowed: true},
		{name: "queued to cancelling", from: RunStatusQueued, to: RunStatusCancelling, allowed: true},
		{name: "queued to paused", from: RunStatusQueued, to: RunStatusPaused, allowed: false},
		{name: "running to pausing", from: RunStatusRunning, to: RunStatusPausing, allowed: true},
		{name: "running to paused", from: RunStatusRunning, to: RunStatusPaused, allowed: true},
		{name: "running to completed", from: RunStatusRunning, to: RunStatusCompleted, allowed: true},
		{name: "running to queued", from: RunStatusRunning, to: RunStatusQueued, allowed: false},
		{name: "pausing to paused", from: RunStatusPausing, to: RunStatusPaused, allowed: true},
		{name: "pausing to running", from: RunStatusPausing, to: RunStatusRunning, allowed: false},
		{name: "paused to running", from: RunStatusPaused, to: RunStatusRunning, allowed: true},
		{name: "paused to completed", from: RunStatusPaused, to: RunStatusCompleted, allowed: false},
		{name: "cancelling to cancelled", from: RunStatusCancelling, to: RunStatusCancelled, allowed: true},
		{name: "cancelling to running", from: RunStatusCancelling, to: RunStatusRunning, allowed: false},
		{name: "running to error", from: RunStatusRunning, to: RunStatusError, allowed: true},
		{name: "paused to error", from: RunStatusPaused, to: RunStatusError, allowed: true},
		{name: "completed is final", from: RunStatusCompleted, to: RunStatusRunning, allowed: false},
		{name: "cancelled is final", from: RunStatusCancelled, to: RunStatusRunning, allowed: false},
		{name: "error is final", from: RunStatusError, to: RunStatusQueued, allowed: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.allowed, tt.from.isValidTransition(tt.to))
		})
	}
}
