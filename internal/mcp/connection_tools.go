package mcp

import (
	"context"

	"devlink-mcp-server/internal/connection"
	"devlink-mcp-server/internal/strategy"
)

// connectProperties is shared by connect-devtools and reconnect-devtools.
func connectProperties() map[string]interface{} {
	return map[string]interface{}{
		"strategy": map[string]interface{}{
			"type":        "string",
			"description": "Primary strategy: launch | connect | discover. Default: connect when endpoint is set, else launch",
			"enum":        []string{strategy.Launch, strategy.Connect, strategy.Discover},
		},
		"fallback": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Strategies tried in order after the primary fails",
		},
		"project_path": map[string]interface{}{
			"type":        "string",
			"description": "Project directory for launch; its index.html is opened when url is empty",
		},
		"endpoint": map[string]interface{}{
			"type":        "string",
			"description": "DevTools endpoint for connect: ws://..., http://host:port, host:port or a port",
		},
		"binary": map[string]interface{}{
			"type":        "string",
			"description": "Browser binary for launch (default: auto-detected)",
		},
		"port": map[string]interface{}{
			"type":        "integer",
			"description": "Remote debugging port for launch; also probed first by discover",
		},
		"headless": map[string]interface{}{
			"type":        "boolean",
			"description": "Run a launched browser headless (default: true)",
		},
		"stealth": map[string]interface{}{
			"type":        "boolean",
			"description": "Open the page with stealth evasions",
		},
		"url": map[string]interface{}{
			"type":        "string",
			"description": "URL to open once attached",
		},
		"discovery": map[string]interface{}{
			"type":        "boolean",
			"description": "Append discover to the fallback chain",
		},
		"discovery_ports": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "integer"},
			"description": "Ports probed by discover (default: 9222, 9229, 9421)",
		},
		"timeout_ms": map[string]interface{}{
			"type":        "integer",
			"description": "Per-strategy attach timeout in milliseconds",
		},
		"total_timeout_ms": map[string]interface{}{
			"type":        "integer",
			"description": "Bound on the whole fallback chain in milliseconds (0 = unbounded)",
		},
		"health_check": map[string]interface{}{
			"type":        "boolean",
			"description": "Probe the session after attach (default: true)",
		},
	}
}

// requestFromArgs reads connect overrides. Absent arguments stay zero so they
// do not override configured defaults.
func requestFromArgs(args map[string]interface{}) (*connection.Request, error) {
	ports, err := getIntSliceArg(args, "discovery_ports")
	if err != nil {
		return nil, err
	}
	req := &connection.Request{
		Strategy: getStringArg(args, "strategy"),
		Fallback: getStringSliceArg(args, "fallback"),
		Params: strategy.Params{
			ProjectPath:    getStringArg(args, "project_path"),
			Endpoint:       getStringArg(args, "endpoint"),
			Binary:         getStringArg(args, "binary"),
			Port:           getIntArg(args, "port", 0),
			Headless:       getOptionalBoolArg(args, "headless"),
			Stealth:        getBoolArg(args, "stealth", false),
			URL:            getStringArg(args, "url"),
			DiscoveryPorts: ports,
		},
		AttachTimeout: getDurationMsArg(args, "timeout_ms"),
		TotalTimeout:  getDurationMsArg(args, "total_timeout_ms"),
		HealthCheck:   getOptionalBoolArg(args, "health_check"),
		Discovery:     getBoolArg(args, "discovery", false),
	}
	return req, nil
}

type ConnectTool struct {
	automation *Context
}

func (t *ConnectTool) Name() string { return "connect-devtools" }
func (t *ConnectTool) Description() string {
	return `Establish the DevTools session, trying strategies in order until one attaches and passes the health check.

STRATEGIES:
- launch: spawn a browser for project_path (or url) and attach to it
- connect: attach to an explicit endpoint (ws://127.0.0.1:9421, http://localhost:9222, 9222)
- discover: probe well-known local debugger ports

Any existing session is torn down first. A failed strategy is recorded as a warning
("launch failed: <reason>") and the next one is tried; degraded health is accepted.

Returns: {connected, strategy_used, endpoint, connection_id, warnings[], health}.
On failure: ALL_STRATEGIES_EXHAUSTED with one line per attempt.`
}
func (t *ConnectTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": connectProperties(),
	}
}
func (t *ConnectTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := requestFromArgs(args)
	if err != nil {
		return nil, err
	}
	return t.automation.Connect(ctx, req)
}

type ReconnectTool struct {
	automation *Context
}

func (t *ReconnectTool) Name() string { return "reconnect-devtools" }
func (t *ReconnectTool) Description() string {
	return `Repeat the last successful connect, optionally overriding any of its arguments.

Fails with NO_PRIOR_CONNECTION when nothing has connected yet.

Returns: same shape as connect-devtools.`
}
func (t *ReconnectTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": connectProperties(),
	}
}
func (t *ReconnectTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := requestFromArgs(args)
	if err != nil {
		return nil, err
	}
	return t.automation.Manager().Reconnect(ctx, req)
}

type DisconnectTool struct {
	automation *Context
}

func (t *DisconnectTool) Name() string { return "disconnect-devtools" }
func (t *DisconnectTool) Description() string {
	return `Tear down the current session. Safe to call when nothing is connected.

A launched browser is closed; an attached endpoint is only detached.
Collected console and network entries are kept.

Returns: the disconnected status snapshot.`
}
func (t *DisconnectTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *DisconnectTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.automation.Manager().Disconnect(ctx), nil
}

type StatusTool struct {
	automation *Context
}

func (t *StatusTool) Name() string { return "get-connection-status" }
func (t *StatusTool) Description() string {
	return `Report the connection state without side effects.

With refresh_health=true the session is probed first; an unhealthy session is torn
down and the snapshot carries HEALTH_CHECK_FAILED as last_error.

Returns: {state, connected, has_current_page, page_path, strategy_used, connection_id,
endpoint, last_error, warnings[], health_level}.`
}
func (t *StatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"refresh_health": map[string]interface{}{
				"type":        "boolean",
				"description": "Run the health probe before reporting (default: false)",
			},
		},
	}
}
func (t *StatusTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if getBoolArg(args, "refresh_health", false) {
		return t.automation.Manager().RefreshHealth(ctx), nil
	}
	return t.automation.Manager().Status(), nil
}
