package mcp

import (
	"context"
	"fmt"

	"devlink-mcp-server/internal/collector"
	"devlink-mcp-server/internal/errs"
)

const summaryTextLimit = 200

// pagination mirrors the page metadata returned by every list tool.
type pagination struct {
	Total      int    `json:"total"`
	PageIdx    int    `json:"page_idx"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
	Showing    string `json:"showing"`
	NextPage   *int   `json:"next_page,omitempty"`
	PrevPage   *int   `json:"prev_page,omitempty"`
}

func paginationOf[T collector.Typed](p collector.Page[T]) pagination {
	showing := fmt.Sprintf("%d-%d of %d", p.Start, p.End, p.Total)
	if len(p.Entries) == 0 {
		showing = fmt.Sprintf("none of %d", p.Total)
	}
	return pagination{
		Total:      p.Total,
		PageIdx:    p.PageIdx,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
		Showing:    showing,
		NextPage:   p.NextPage,
		PrevPage:   p.PrevPage,
	}
}

func orderArg(args map[string]interface{}) (collector.Order, error) {
	switch getStringArg(args, "order") {
	case "", "newest":
		return collector.NewestFirst, nil
	case "oldest":
		return collector.OldestFirst, nil
	default:
		return 0, errs.New(errs.InvalidArgument, "", "order must be newest or oldest, got %q", getStringArg(args, "order"))
	}
}

func listProperties(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"page_size": map[string]interface{}{
			"type":        "integer",
			"description": "Entries per page (default from config, 20)",
		},
		"page_idx": map[string]interface{}{
			"type":        "integer",
			"description": "Zero-based page index (default: 0)",
		},
		"include_preserved": map[string]interface{}{
			"type":        "boolean",
			"description": "Include entries from earlier navigations that are still retained (default: false)",
		},
		"order": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"newest", "oldest"},
			"description": "Segment order when include_preserved is set (default: newest, current navigation first; oldest lists ids ascending)",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

type consoleSummary struct {
	MsgID    int64  `json:"msgid"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	TimeMs   int64  `json:"timestamp_ms"`
	Location string `json:"location,omitempty"`
}

type ListConsoleMessagesTool struct {
	automation *Context
}

func (t *ListConsoleMessagesTool) Name() string { return "list-console-messages" }
func (t *ListConsoleMessagesTool) Description() string {
	return `List console messages and uncaught exceptions collected since the last navigation.

Entries keep the same msgid across pages, navigations and reconnects; pass it to
get-console-message for the full record (arguments, stack trace, page URL).

FILTERS:
- types: console levels (log, info, warning, error, debug) and/or "exception"
- text: case-insensitive substring
- include_preserved: also list entries from the retained previous navigations

Returns: {messages: [{msgid, type, text, timestamp_ms, location}], pagination}.`
}
func (t *ListConsoleMessagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": listProperties(map[string]interface{}{
			"types": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Only these types (console level or exception)",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Only messages containing this text",
			},
		}),
	}
}
func (t *ListConsoleMessagesTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	order, err := orderArg(args)
	if err != nil {
		return nil, err
	}
	page := t.automation.Console().Data(collector.Query[collector.LogRecord]{
		IncludePreserved: getBoolArg(args, "include_preserved", false),
		Filter: collector.All(
			collector.TypeIn[collector.LogRecord](getStringSliceArg(args, "types")...),
			collector.MessageContains(getStringArg(args, "text")),
		),
		PageSize: getIntArg(args, "page_size", t.automation.PageSize()),
		PageIdx:  getIntArg(args, "page_idx", 0),
		Order:    order,
	})

	messages := make([]consoleSummary, 0, len(page.Entries))
	for _, e := range page.Entries {
		messages = append(messages, summarizeConsole(e))
	}
	return map[string]interface{}{
		"messages":   messages,
		"pagination": paginationOf(page),
	}, nil
}

func summarizeConsole(e collector.Entry[collector.LogRecord]) consoleSummary {
	return consoleSummary{
		MsgID:    e.ID,
		Type:     e.Type,
		Text:     truncate(e.Item.Text(), summaryTextLimit),
		TimeMs:   e.Time.UnixMilli(),
		Location: e.Item.Location(),
	}
}

type GetConsoleMessageTool struct {
	automation *Context
}

func (t *GetConsoleMessageTool) Name() string { return "get-console-message" }
func (t *GetConsoleMessageTool) Description() string {
	return `Get one console message or exception by msgid, with arguments and stack trace.

Fails with ENTRY_NOT_FOUND when the id was never assigned, was cleared, or its
navigation has been evicted.`
}
func (t *GetConsoleMessageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"msgid": map[string]interface{}{
				"type":        "integer",
				"description": "Stable id from list-console-messages",
			},
		},
		"required": []string{"msgid"},
	}
}
func (t *GetConsoleMessageTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireID(args, "msgid")
	if err != nil {
		return nil, err
	}
	entry, ok := t.automation.Console().Get(id)
	if !ok {
		return nil, errs.New(errs.EntryNotFound, "", "no console message with msgid %d", id)
	}
	return map[string]interface{}{
		"msgid":        entry.ID,
		"type":         entry.Type,
		"timestamp_ms": entry.Time.UnixMilli(),
		"text":         entry.Item.Text(),
		"location":     entry.Item.Location(),
		"record":       entry.Item,
	}, nil
}

type networkSummary struct {
	ReqID  int64  `json:"reqid"`
	Method string `json:"method"`
	URL    string `json:"url"`
	Type   string `json:"type"`
	State  string `json:"state"`
}

type ListNetworkRequestsTool struct {
	automation *Context
}

func (t *ListNetworkRequestsTool) Name() string { return "list-network-requests" }
func (t *ListNetworkRequestsTool) Description() string {
	return `List network requests collected since the last navigation.

Each request keeps its reqid while its response or failure arrives later; pass it
to get-network-request for headers, timing and correlated console messages.

FILTERS:
- resource_types: document, stylesheet, script, image, xhr, fetch, websocket, other ...
- url_pattern: glob matched against the full URL, e.g. "*/api/*"
- status: all | success | failed (failed includes HTTP >= 400)

Returns: {requests: [{reqid, method, url, type, state}], pagination}.`
}
func (t *ListNetworkRequestsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": listProperties(map[string]interface{}{
			"resource_types": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Only these resource types",
			},
			"url_pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern for the request URL",
			},
			"status": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"all", "success", "failed"},
				"description": "Outcome filter (default: all)",
			},
		}),
	}
}
func (t *ListNetworkRequestsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	order, err := orderArg(args)
	if err != nil {
		return nil, err
	}
	urlFilter, err := collector.URLMatches(getStringArg(args, "url_pattern"))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "", err)
	}
	statusFilter, err := collector.StatusIs(getStringArg(args, "status"))
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "", err)
	}

	page := t.automation.Network().Data(collector.Query[collector.NetworkRecord]{
		IncludePreserved: getBoolArg(args, "include_preserved", false),
		Filter: collector.All(
			collector.TypeIn[collector.NetworkRecord](getStringSliceArg(args, "resource_types")...),
			urlFilter,
			statusFilter,
		),
		PageSize: getIntArg(args, "page_size", t.automation.PageSize()),
		PageIdx:  getIntArg(args, "page_idx", 0),
		Order:    order,
	})

	requests := make([]networkSummary, 0, len(page.Entries))
	for _, e := range page.Entries {
		requests = append(requests, networkSummary{
			ReqID:  e.ID,
			Method: e.Item.Method,
			URL:    truncate(e.Item.URL, summaryTextLimit),
			Type:   e.Type,
			State:  e.Item.State(),
		})
	}
	return map[string]interface{}{
		"requests":   requests,
		"pagination": paginationOf(page),
	}, nil
}

type GetNetworkRequestTool struct {
	automation *Context
}

func (t *GetNetworkRequestTool) Name() string { return "get-network-request" }
func (t *GetNetworkRequestTool) Description() string {
	return `Get one network request by reqid: headers, status, timing and initiator.

Console messages that mention the request's correlation ids (x-request-id,
traceparent, x-correlation-id ...) are listed under correlated_console.

Fails with ENTRY_NOT_FOUND when the id is unknown, cleared or evicted.`
}
func (t *GetNetworkRequestTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"reqid": map[string]interface{}{
				"type":        "integer",
				"description": "Stable id from list-network-requests",
			},
		},
		"required": []string{"reqid"},
	}
}
func (t *GetNetworkRequestTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireID(args, "reqid")
	if err != nil {
		return nil, err
	}
	entry, ok := t.automation.Network().Get(id)
	if !ok {
		return nil, errs.New(errs.EntryNotFound, "", "no network request with reqid %d", id)
	}

	keys := networkKeys(entry.Item)
	correlated := make([]consoleSummary, 0)
	for _, msgID := range t.automation.Correlations().Lookup(keys) {
		if msg, ok := t.automation.Console().Get(msgID); ok {
			correlated = append(correlated, summarizeConsole(msg))
		}
	}
	keyStrings := make([]string, 0, len(keys))
	for _, k := range keys {
		keyStrings = append(keyStrings, k.String())
	}

	return map[string]interface{}{
		"reqid":              entry.ID,
		"type":               entry.Type,
		"state":              entry.Item.State(),
		"duration_ms":        entry.Item.Duration().Milliseconds(),
		"request":            entry.Item,
		"correlation_keys":   keyStrings,
		"correlated_console": correlated,
	}, nil
}

type ClearEventsTool struct {
	automation *Context
}

func (t *ClearEventsTool) Name() string { return "clear-events" }
func (t *ClearEventsTool) Description() string {
	return `Drop collected console and/or network entries and their mirrored facts.

Ids are never reused: the next entry continues from the last assigned id.`
}
func (t *ClearEventsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"which": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"console", "network", "all"},
				"description": "What to clear (default: all)",
			},
		},
	}
}
func (t *ClearEventsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	which := getStringArg(args, "which")
	if which == "" {
		which = "all"
	}
	cleared := make([]string, 0, 2)
	switch which {
	case "console":
		t.automation.ClearConsole()
		cleared = append(cleared, "console")
	case "network":
		t.automation.ClearNetwork()
		cleared = append(cleared, "network")
	case "all":
		t.automation.ClearConsole()
		t.automation.ClearNetwork()
		cleared = append(cleared, "console", "network")
	default:
		return nil, errs.New(errs.InvalidArgument, "", "which must be console, network or all, got %q", which)
	}
	return map[string]interface{}{"success": true, "cleared": cleared}, nil
}
