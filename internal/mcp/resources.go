package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"devlink-mcp-server/internal/mangle"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"devlink://about",
			"devlink About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, strategies and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"devlink://status",
			"Connection Status",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Current connection snapshot (same as get-connection-status)."),
		),
		s.handleStatusResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"devlink://facts{?predicate,limit,since_ms}",
			"Event Facts",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Most recent mirrored event facts, optionally for one predicate and after since_ms."),
		),
		s.handleFactsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":       s.cfg.Server.Name,
		"version":    s.cfg.Server.Version,
		"strategies": []string{"launch", "connect", "discover"},
		"notes": []string{
			"Call connect-devtools first; get-connection-status never blocks.",
			"msgid/reqid values are stable across pages and navigations until evicted or cleared.",
			"Resources are read-only; use tools for actions.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}
	return jsonResource(request.Params.URI, payload)
}

func (s *Server) handleStatusResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, s.automation.Manager().Status())
}

func (s *Server) handleFactsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	engine := s.automation.Engine()
	if engine == nil {
		return nil, fmt.Errorf("mangle engine unavailable")
	}

	predicate := argString(request.Params.Arguments["predicate"])
	limit, _ := strconv.Atoi(argString(request.Params.Arguments["limit"]))
	if limit <= 0 {
		limit = 25
	}
	if limit > 500 {
		limit = 500
	}

	var since time.Time
	if ms, err := strconv.ParseInt(argString(request.Params.Arguments["since_ms"]), 10, 64); err == nil && ms > 0 {
		since = time.UnixMilli(ms)
	}

	facts := recentFacts(engine, predicate, since, limit)
	return jsonResource(request.Params.URI, map[string]interface{}{
		"predicate": predicate,
		"limit":     limit,
		"count":     len(facts),
		"facts":     facts,
	})
}

func jsonResource(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

// recentFacts returns the newest limit facts in chronological order. A
// non-zero since only applies together with a predicate.
func recentFacts(engine *mangle.Engine, predicate string, since time.Time, limit int) []mangle.Fact {
	if engine == nil || limit <= 0 {
		return []mangle.Fact{}
	}

	var source []mangle.Fact
	if predicate != "" && !since.IsZero() {
		source = engine.QueryTemporal(predicate, since, time.Time{})
	} else if predicate != "" {
		source = engine.FactsByPredicate(predicate)
	} else {
		source = engine.Facts()
	}
	if len(source) > limit {
		source = source[len(source)-limit:]
	}
	return append([]mangle.Fact{}, source...)
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}
