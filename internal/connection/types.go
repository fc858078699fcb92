package connection

import (
	"time"

	"devlink-mcp-server/internal/automation"
	"devlink-mcp-server/internal/errs"
	"devlink-mcp-server/internal/health"
	"devlink-mcp-server/internal/strategy"
)

// State is the manager lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Request describes one connect call.
type Request struct {
	Strategy string          `json:"strategy"`
	Fallback []string        `json:"fallback,omitempty"`
	Params   strategy.Params `json:"params"`
	// AttachTimeout bounds each candidate's attach. Zero means no per-attempt bound.
	AttachTimeout time.Duration `json:"attach_timeout,omitempty"`
	// TotalTimeout bounds the whole fallback chain. Zero means unbounded.
	TotalTimeout time.Duration `json:"total_timeout,omitempty"`
	// HealthCheck defaults to enabled when nil.
	HealthCheck *bool `json:"health_check,omitempty"`
	// Discovery appends the discover strategy when it is not already a candidate.
	Discovery bool `json:"discovery,omitempty"`
}

func (r Request) healthCheckEnabled() bool {
	return r.HealthCheck == nil || *r.HealthCheck
}

// Merge applies the non-zero fields of o on top of r. A nil o returns r unchanged.
func (r Request) Merge(o *Request) Request {
	out := r
	out.Fallback = append([]string(nil), r.Fallback...)
	if o == nil {
		return out
	}
	if o.Strategy != "" {
		out.Strategy = o.Strategy
	}
	if o.Fallback != nil {
		out.Fallback = append([]string(nil), o.Fallback...)
	}
	out.Params = r.Params.Merge(o.Params)
	if o.AttachTimeout != 0 {
		out.AttachTimeout = o.AttachTimeout
	}
	if o.TotalTimeout != 0 {
		out.TotalTimeout = o.TotalTimeout
	}
	if o.HealthCheck != nil {
		v := *o.HealthCheck
		out.HealthCheck = &v
	}
	if o.Discovery {
		out.Discovery = true
	}
	return out
}

// Candidates is the ordered strategy list: primary, then fallbacks, then
// discover when enabled and not already listed. An empty primary defaults to
// connect when an endpoint is given and launch otherwise.
func (r Request) Candidates() []string {
	primary := r.Strategy
	if primary == "" {
		if r.Params.Endpoint != "" {
			primary = strategy.Connect
		} else {
			primary = strategy.Launch
		}
	}
	out := append([]string{primary}, r.Fallback...)
	if r.Discovery {
		for _, c := range out {
			if c == strategy.Discover {
				return out
			}
		}
		out = append(out, strategy.Discover)
	}
	return out
}

// Result is returned by a successful connect.
type Result struct {
	Status       State           `json:"status"`
	Connected    bool            `json:"connected"`
	StrategyUsed string          `json:"strategy_used"`
	Endpoint     string          `json:"endpoint"`
	ConnectionID string          `json:"connection_id"`
	Warnings     []string        `json:"warnings"`
	Health       *health.Verdict `json:"health,omitempty"`
	Page         automation.Page `json:"page"`
}

// ErrorInfo is the last error as it appears in a snapshot.
type ErrorInfo struct {
	Code    errs.Code `json:"code,omitempty"`
	Phase   string    `json:"phase,omitempty"`
	Message string    `json:"message"`
}

// Snapshot is an immutable view of the manager. A fresh value is built on every call.
type Snapshot struct {
	State          State        `json:"state"`
	Connected      bool         `json:"connected"`
	HasCurrentPage bool         `json:"has_current_page"`
	PagePath       string       `json:"page_path,omitempty"`
	PageURL        string       `json:"page_url,omitempty"`
	StrategyUsed   string       `json:"strategy_used,omitempty"`
	ConnectionID   string       `json:"connection_id,omitempty"`
	Endpoint       string       `json:"endpoint,omitempty"`
	ConnectedAt    *time.Time   `json:"connected_at,omitempty"`
	LastError      *ErrorInfo   `json:"last_error,omitempty"`
	Warnings       []string     `json:"warnings"`
	HealthLevel    health.Level `json:"health_level,omitempty"`
}

func errorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Code: errs.CodeOf(err), Message: err.Error()}
	if e, ok := err.(*errs.Error); ok {
		info.Phase = e.Phase
		info.Message = e.Message
	}
	return info
}
