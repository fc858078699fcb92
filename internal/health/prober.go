package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"devlink-mcp-server/internal/automation"
)

const defaultCheckTimeout = 5 * time.Second

// sessionProbe must round-trip through the page's JS context.
const sessionProbe = `() => typeof document !== 'undefined' && document.readyState`

// Prober runs the transport, session and page checks in that order.
type Prober struct {
	CheckTimeout time.Duration
}

// NewProber returns a prober with the given per-check timeout (0 uses 5s).
func NewProber(checkTimeout time.Duration) *Prober {
	if checkTimeout <= 0 {
		checkTimeout = defaultCheckTimeout
	}
	return &Prober{CheckTimeout: checkTimeout}
}

// Probe runs the battery against h. When the transport check fails the
// remaining checks are recorded as skipped failures without touching h.
func (p *Prober) Probe(ctx context.Context, h automation.Handle) Verdict {
	if h == nil {
		return NewVerdict([]CheckResult{{Name: CheckTransport, Message: "no handle"}})
	}

	checks := make([]CheckResult, 0, 3)
	transport := p.run(ctx, CheckTransport, func(cctx context.Context) (string, error) {
		if err := h.Ping(cctx); err != nil {
			return "", err
		}
		return "endpoint responded", nil
	})
	checks = append(checks, transport)
	if !transport.Passed {
		checks = append(checks,
			CheckResult{Name: CheckSession, Message: "skipped: transport unavailable"},
			CheckResult{Name: CheckPage, Message: "skipped: transport unavailable"},
		)
		return NewVerdict(checks)
	}

	checks = append(checks, p.run(ctx, CheckSession, func(cctx context.Context) (string, error) {
		raw, err := h.Evaluate(cctx, sessionProbe)
		if err != nil {
			return "", err
		}
		var state interface{}
		if err := json.Unmarshal(raw, &state); err != nil {
			return "", fmt.Errorf("unexpected evaluation result %s", string(raw))
		}
		if state == false || state == nil {
			return "", fmt.Errorf("document not available")
		}
		return fmt.Sprintf("readyState=%v", state), nil
	}))

	checks = append(checks, p.run(ctx, CheckPage, func(cctx context.Context) (string, error) {
		page, err := h.CurrentPage(cctx)
		if err != nil {
			return "", err
		}
		if page.URL == "" {
			return "", fmt.Errorf("no current page")
		}
		return page.Path, nil
	}))

	return NewVerdict(checks)
}

func (p *Prober) run(ctx context.Context, name string, fn func(context.Context) (string, error)) CheckResult {
	timeout := p.CheckTimeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := fn(cctx)
	if err != nil {
		return CheckResult{Name: name, Passed: false, Message: err.Error()}
	}
	return CheckResult{Name: name, Passed: true, Message: msg}
}
