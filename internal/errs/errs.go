// Package errs holds the typed failure taxonomy shared by the connection layer,
// the event collectors and the MCP tool boundary.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a failure.
type Code string

const (
	// StrategyAttachFailed means one candidate strategy could not bootstrap or attach.
	// Recoverable through the fallback list.
	StrategyAttachFailed Code = "STRATEGY_ATTACH_FAILED"
	// AllStrategiesExhausted is terminal for a single connect call.
	AllStrategiesExhausted Code = "ALL_STRATEGIES_EXHAUSTED"
	// HealthCheckFailed means a probe found the session unusable; the session is torn down.
	HealthCheckFailed Code = "HEALTH_CHECK_FAILED"
	// NoPriorConnection is returned by reconnect when connect never succeeded.
	NoPriorConnection Code = "NO_PRIOR_CONNECTION"
	// EntryNotFound is a collector lookup miss surfaced at the tool boundary.
	EntryNotFound Code = "ENTRY_NOT_FOUND"
	// NotConnected is returned by page-level operations when no session is live.
	NotConnected Code = "NOT_CONNECTED"
	// InvalidArgument reports a malformed tool argument.
	InvalidArgument Code = "INVALID_ARGUMENT"
)

// PhaseHealth is the phase name used for failures raised by the health prober.
const PhaseHealth = "health"

// Attempt records one candidate strategy that was tried during a connect.
type Attempt struct {
	Strategy string `json:"strategy"`
	Phase    string `json:"phase"`
	Reason   string `json:"reason"`
}

// Warning renders the attempt the way it is reported back to callers.
func (a Attempt) Warning() string {
	return fmt.Sprintf("%s failed: %s", a.Strategy, a.Reason)
}

// Error is the single error type produced at the point of failure.
type Error struct {
	Code     Code
	Phase    string
	Message  string
	Attempts []Attempt
	Err      error
}

// New builds an Error without a cause.
func New(code Code, phase, format string, args ...interface{}) *Error {
	return &Error{Code: code, Phase: phase, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around cause. The message defaults to the cause's text.
func Wrap(code Code, phase string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: code, Phase: phase, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Phase != "" {
		b.WriteString(" [")
		b.WriteString(e.Phase)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Describe formats err for display to a tool caller: code, phase, message and,
// for exhausted connects, the ordered per-attempt reasons.
func Describe(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(e.Error())
	if len(e.Attempts) > 0 {
		b.WriteString("\nattempts:")
		for i, a := range e.Attempts {
			fmt.Fprintf(&b, "\n  %d. %s (%s): %s", i+1, a.Strategy, a.Phase, a.Reason)
		}
	}
	return b.String()
}
