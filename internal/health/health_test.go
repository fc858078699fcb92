package health

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devlink-mcp-server/internal/automation/automationtest"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name   string
		checks []CheckResult
		want   Level
	}{
		{"all pass", []CheckResult{{Name: CheckTransport, Passed: true}, {Name: CheckSession, Passed: true}}, Healthy},
		{"transport failed", []CheckResult{{Name: CheckTransport}, {Name: CheckSession, Passed: true}}, Unhealthy},
		{"transport absent", []CheckResult{{Name: CheckSession, Passed: true}}, Unhealthy},
		{"empty", nil, Unhealthy},
		{"page failed", []CheckResult{{Name: CheckTransport, Passed: true}, {Name: CheckPage}}, Degraded},
		{"session and page failed", []CheckResult{{Name: CheckTransport, Passed: true}, {Name: CheckSession}, {Name: CheckPage}}, Degraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.checks))
		})
	}
}

func TestProbeHealthy(t *testing.T) {
	h := automationtest.New("ws://127.0.0.1:9421/devtools/browser/x", "http://localhost:3000/pages/index")
	h.EvalResult = json.RawMessage(`"complete"`)

	v := NewProber(time.Second).Probe(context.Background(), h)
	require.Len(t, v.Checks, 3)
	assert.Equal(t, []string{CheckTransport, CheckSession, CheckPage}, names(v.Checks))
	assert.Equal(t, Healthy, v.Level)
	assert.Equal(t, "/pages/index", v.Checks[2].Message)
}

func TestProbeTransportFailureSkipsRest(t *testing.T) {
	h := automationtest.New("ws://x", "http://localhost/")
	h.PingErr = errors.New("socket closed")

	v := NewProber(time.Second).Probe(context.Background(), h)
	assert.Equal(t, Unhealthy, v.Level)
	require.Len(t, v.Checks, 3)
	assert.Equal(t, "socket closed", v.Checks[0].Message)
	assert.Contains(t, v.Checks[1].Message, "skipped")
	assert.Contains(t, v.Summary(), "transport check failed")
}

func TestProbeDegradedWhenPageMissing(t *testing.T) {
	h := automationtest.New("ws://x", "")
	v := NewProber(time.Second).Probe(context.Background(), h)
	assert.Equal(t, Degraded, v.Level)
	require.Len(t, v.Failed(), 1)
	assert.Equal(t, CheckPage, v.Failed()[0].Name)
}

func TestProbeDegradedWhenEvaluateFails(t *testing.T) {
	h := automationtest.New("ws://x", "http://localhost/")
	h.EvalErr = errors.New("execution context destroyed")
	v := NewProber(0).Probe(context.Background(), h)
	assert.Equal(t, Degraded, v.Level)
	assert.Equal(t, CheckSession, v.Failed()[0].Name)
}

func TestProbeNilHandle(t *testing.T) {
	v := NewProber(0).Probe(context.Background(), nil)
	assert.Equal(t, Unhealthy, v.Level)
}

func names(checks []CheckResult) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.Name
	}
	return out
}
