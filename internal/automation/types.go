// Package automation is the boundary to the remote DevTools endpoint. The rest of
// the server only sees the Handle interface and the Event variant defined here.
package automation

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// Handle is a live binding to one remote endpoint and its current page.
type Handle interface {
	// Endpoint is the resolved WebSocket address the handle is attached to.
	Endpoint() string
	// Ping verifies the transport round-trips a protocol call.
	Ping(ctx context.Context) error
	// Evaluate runs a JS function expression in the current page and returns its JSON value.
	Evaluate(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error)
	CurrentPage(ctx context.Context) (Page, error)
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	// OnEvent registers fn for kind and returns the function that detaches exactly that listener.
	OnEvent(kind EventKind, fn func(Event)) (detach func())
	RemoveAllListeners(kind EventKind)
	// Close tears the binding down. Spawned processes are killed, attached endpoints are only disconnected.
	Close(ctx context.Context) error
}

// Page describes the page a handle is driving.
type Page struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// PathOf reduces a page URL to the path reported in status snapshots.
// Opaque URLs such as about:blank are returned unchanged.
func PathOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Opaque != "" {
		return raw
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// EventKind discriminates the Event variant.
type EventKind string

const (
	EventConsole       EventKind = "console"
	EventException     EventKind = "exception"
	EventRequest       EventKind = "request"
	EventResponse      EventKind = "response"
	EventRequestFailed EventKind = "requestfailed"
	EventNavigated     EventKind = "navigated"
)

// Event is a tagged variant: Kind names which single payload pointer is set.
type Event struct {
	Kind       EventKind
	Time       time.Time
	Console    *ConsoleMessage
	Exception  *Exception
	Request    *Request
	Response   *Response
	Failure    *RequestFailure
	Navigation *Navigation
}

type ConsoleMessage struct {
	Level      string   `json:"level"`
	Text       string   `json:"text"`
	Args       []string `json:"args,omitempty"`
	URL        string   `json:"url,omitempty"`
	Line       int      `json:"line,omitempty"`
	Column     int      `json:"column,omitempty"`
	StackTrace []string `json:"stack_trace,omitempty"`
}

type Exception struct {
	Text        string   `json:"text"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
	StackTrace  []string `json:"stack_trace,omitempty"`
}

type Request struct {
	RequestID    string            `json:"request_id"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	ResourceType string            `json:"resource_type"`
	Headers      map[string]string `json:"headers,omitempty"`
	Initiator    string            `json:"initiator,omitempty"`
}

type Response struct {
	RequestID  string            `json:"request_id"`
	Status     int               `json:"status"`
	StatusText string            `json:"status_text,omitempty"`
	MIMEType   string            `json:"mime_type,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	FromCache  bool              `json:"from_cache,omitempty"`
}

type RequestFailure struct {
	RequestID string `json:"request_id"`
	ErrorText string `json:"error_text"`
	Canceled  bool   `json:"canceled,omitempty"`
}

// Navigation is emitted for main-frame navigations only.
type Navigation struct {
	URL     string `json:"url"`
	FrameID string `json:"frame_id,omitempty"`
}
