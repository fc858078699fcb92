package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(HealthCheckFailed, PhaseHealth, "transport check failed: %s", "closed")
	assert.Equal(t, "HEALTH_CHECK_FAILED [health]: transport check failed: closed", err.Error())

	bare := &Error{Code: NoPriorConnection}
	assert.Equal(t, "NO_PRIOR_CONNECTION", bare.Error())
}

func TestIsFollowsWrapping(t *testing.T) {
	cause := errors.New("port in use")
	err := Wrap(StrategyAttachFailed, "launch", cause)
	wrapped := fmt.Errorf("tool: %w", err)

	assert.True(t, Is(wrapped, StrategyAttachFailed))
	assert.False(t, Is(wrapped, HealthCheckFailed))
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, StrategyAttachFailed, CodeOf(wrapped))
	assert.Equal(t, Code(""), CodeOf(cause))
}

func TestDescribeListsAttempts(t *testing.T) {
	err := &Error{
		Code:    AllStrategiesExhausted,
		Phase:   "connect",
		Message: "dial refused",
		Attempts: []Attempt{
			{Strategy: "launch", Phase: "attach", Reason: "port in use"},
			{Strategy: "connect", Phase: "attach", Reason: "dial refused"},
		},
	}
	out := Describe(err)
	assert.Contains(t, out, "ALL_STRATEGIES_EXHAUSTED [connect]: dial refused")
	assert.Contains(t, out, "1. launch (attach): port in use")
	assert.Contains(t, out, "2. connect (attach): dial refused")

	assert.Equal(t, "plain", Describe(errors.New("plain")))
}

func TestAttemptWarning(t *testing.T) {
	a := Attempt{Strategy: "launch", Phase: "attach", Reason: "port in use"}
	assert.Equal(t, "launch failed: port in use", a.Warning())
}
