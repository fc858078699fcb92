// Package automationtest provides an in-memory automation.Handle for tests.
package automationtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"devlink-mcp-server/internal/automation"
)

// Handle is a scriptable automation.Handle. Zero values answer successfully.
type Handle struct {
	mu sync.Mutex

	EndpointURL string
	Page        automation.Page
	PingErr     error
	EvalErr     error
	EvalResult  json.RawMessage
	PageErr     error
	NavigateErr error
	CloseErr    error
	Shot        []byte

	closeCalls int
	navigated  []string
	next       int
	listeners  map[automation.EventKind]map[int]func(automation.Event)
}

// New returns a handle attached to endpoint with a page at pageURL.
func New(endpoint, pageURL string) *Handle {
	return &Handle{
		EndpointURL: endpoint,
		Page:        automation.Page{ID: "page-1", URL: pageURL, Path: automation.PathOf(pageURL)},
	}
}

func (h *Handle) Endpoint() string { return h.EndpointURL }

func (h *Handle) Ping(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.PingErr
}

func (h *Handle) Evaluate(context.Context, string, ...interface{}) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.EvalErr != nil {
		return nil, h.EvalErr
	}
	if h.EvalResult == nil {
		return json.RawMessage("true"), nil
	}
	return h.EvalResult, nil
}

func (h *Handle) CurrentPage(context.Context) (automation.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.PageErr != nil {
		return automation.Page{}, h.PageErr
	}
	return h.Page, nil
}

func (h *Handle) Navigate(_ context.Context, url string) error {
	h.mu.Lock()
	if h.NavigateErr != nil {
		h.mu.Unlock()
		return h.NavigateErr
	}
	h.navigated = append(h.navigated, url)
	h.Page.URL = url
	h.Page.Path = automation.PathOf(url)
	h.mu.Unlock()

	h.Emit(automation.Event{Kind: automation.EventNavigated, Navigation: &automation.Navigation{URL: url}})
	return nil
}

func (h *Handle) Screenshot(context.Context, bool) ([]byte, error) {
	if h.Shot == nil {
		return nil, errors.New("no screenshot scripted")
	}
	return h.Shot, nil
}

func (h *Handle) OnEvent(kind automation.EventKind, fn func(automation.Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		h.listeners = make(map[automation.EventKind]map[int]func(automation.Event))
	}
	if h.listeners[kind] == nil {
		h.listeners[kind] = make(map[int]func(automation.Event))
	}
	h.next++
	id := h.next
	h.listeners[kind][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners[kind], id)
	}
}

func (h *Handle) RemoveAllListeners(kind automation.EventKind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, kind)
}

func (h *Handle) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCalls++
	return h.CloseErr
}

// Emit delivers ev to the listeners registered for its kind.
func (h *Handle) Emit(ev automation.Event) {
	h.mu.Lock()
	fns := make([]func(automation.Event), 0, len(h.listeners[ev.Kind]))
	for _, fn := range h.listeners[ev.Kind] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// CloseCalls reports how many times Close ran.
func (h *Handle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}

// ListenerCount reports the live listeners across all kinds.
func (h *Handle) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.listeners {
		n += len(m)
	}
	return n
}

// Navigations returns the URLs passed to Navigate.
func (h *Handle) Navigations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.navigated...)
}

// SetPingErr changes the transport outcome after construction.
func (h *Handle) SetPingErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.PingErr = err
}
