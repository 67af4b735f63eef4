package transfers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleMovesForward(t *testing.T) {
	assert.True(t, CanTransition(Observed, Validated))
	assert.True(t, CanTransition(Validated, Submitting))
	assert.True(t, CanTransition(Submitting, Submitted))
	assert.True(t, CanTransition(Submitted, Confirmed))

	assert.False(t, CanTransition(Validated, Observed))
	assert.False(t, CanTransition(Submitted, Submitting))
	assert.False(t, CanTransition(Observed, Submitting))
	assert.False(t, CanTransition(Observed, Confirmed))
}

func TestRetryIsTheOnlyBackwardEdge(t *testing.T) {
	assert.True(t, CanTransition(Submitting, Validated))
	assert.False(t, CanTransition(Submitted, Validated))
	assert.False(t, CanTransition(Confirmed, Validated))
}

func TestFailureFromAnyPreConfirmedState(t *testing.T) {
	for _, from := range []State{Observed, Validated, Submitting, Submitted} {
		assert.True(t, CanTransition(from, Failed), "from %s", from)
	}
	assert.False(t, CanTransition(Confirmed, Failed))
	assert.False(t, CanTransition(Failed, Validated))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, Confirmed.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Submitting.Terminal())
	assert.False(t, Observed.Terminal())
}
