package connection

import "time"

// Trace event types emitted to a Tracer.
const (
	TraceAttempt  = "attempt"
	TraceAttachOK = "attach_ok"
	TraceRejected = "rejected"
	TraceAccepted = "accepted"
	TraceTeardown = "teardown"
	TraceHealth   = "health"
	TraceExhaust  = "exhausted"
)

// Teardown reasons carried in TraceEvent.Reason.
const (
	ReasonDisconnect   = "disconnect"
	ReasonSuperseded   = "superseded by connect"
	ReasonHealthFailed = "health check failed"
	ReasonRejected     = "unhealthy after attach"
)

// TraceEvent is one connection lifecycle step.
type TraceEvent struct {
	Type         string        `json:"type"`
	Time         time.Time     `json:"time"`
	ConnectionID string        `json:"connection_id,omitempty"`
	Strategy     string        `json:"strategy,omitempty"`
	Endpoint     string        `json:"endpoint,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	HealthLevel  string        `json:"health_level,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
}

// Tracer receives lifecycle events. Implementations must not block.
type Tracer interface {
	Trace(TraceEvent)
}
