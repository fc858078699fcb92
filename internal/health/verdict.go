// Package health runs a fixed battery of checks against a live session and
// reduces the results to a tri-state verdict.
package health

// Level is the reduced outcome of a probe.
type Level string

const (
	Healthy   Level = "healthy"
	Degraded  Level = "degraded"
	Unhealthy Level = "unhealthy"
)

// Check names, in the order the prober runs them.
const (
	CheckTransport = "transport"
	CheckSession   = "session"
	CheckPage      = "page"
)

// CheckResult is one named check outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Verdict is the ordered check list plus its reduction.
type Verdict struct {
	Checks []CheckResult `json:"checks"`
	Level  Level         `json:"level"`
}

// NewVerdict reduces checks and returns the verdict carrying them.
func NewVerdict(checks []CheckResult) Verdict {
	return Verdict{Checks: checks, Level: Reduce(checks)}
}

// Reduce maps a check list to a Level. A failed or missing transport check is
// unhealthy; any other failure is degraded.
func Reduce(checks []CheckResult) Level {
	transportSeen := false
	degraded := false
	for _, c := range checks {
		if c.Name == CheckTransport {
			transportSeen = true
			if !c.Passed {
				return Unhealthy
			}
			continue
		}
		if !c.Passed {
			degraded = true
		}
	}
	if !transportSeen {
		return Unhealthy
	}
	if degraded {
		return Degraded
	}
	return Healthy
}

// Failed returns the checks that did not pass.
func (v Verdict) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range v.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Summary is a one-line description of the first failure, or the level when
// nothing failed.
func (v Verdict) Summary() string {
	for _, c := range v.Checks {
		if !c.Passed {
			return c.Name + " check failed: " + c.Message
		}
	}
	return string(v.Level)
}
