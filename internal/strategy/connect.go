package strategy

import (
	"context"
	"errors"
	"fmt"

	"devlink-mcp-server/internal/automation"
)

// ConnectAdapter attaches to an explicitly provided endpoint.
type ConnectAdapter struct {
	Dial Dialer
}

func (a *ConnectAdapter) Name() string { return Connect }

func (a *ConnectAdapter) Attach(ctx context.Context, p Params) (*Attachment, error) {
	if p.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	ws, err := resolveEndpoint(ctx, p.Endpoint)
	if err != nil {
		return nil, err
	}
	h, err := a.Dial(ctx, automation.DialOptions{Endpoint: ws, URL: p.URL, Stealth: p.Stealth})
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", ws, err)
	}
	return finish(ctx, h), nil
}
