package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DialOptions describes how to bind a RodHandle to an endpoint.
type DialOptions struct {
	// Endpoint is the DevTools WebSocket URL (ws://host:port/devtools/browser/<id>).
	Endpoint string
	// Launcher is set when the browser process was spawned for this handle; Close kills it.
	Launcher *launcher.Launcher
	// URL is navigated to once the page is selected. Empty keeps the existing page.
	URL string
	// Stealth opens a fresh page through go-rod/stealth instead of reusing an existing target.
	Stealth bool
}

// RodHandle implements Handle with go-rod over a coder/websocket transport.
type RodHandle struct {
	endpoint  string
	browser   *rod.Browser
	page      *rod.Page
	transport *wsTransport
	launcher  *launcher.Launcher
	listeners *listenerSet

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial attaches to opts.Endpoint, selects or opens the page to drive and starts
// the event pump. ctx bounds the attach only; the handle outlives it.
func Dial(ctx context.Context, opts DialOptions) (*RodHandle, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	transport, err := dialTransport(ctx, opts.Endpoint)
	if err != nil {
		return nil, err
	}

	base, cancel := context.WithCancel(context.Background())
	browser := rod.New().Client(cdp.New().Start(transport)).Context(base)
	if err := browser.Connect(); err != nil {
		cancel()
		_ = transport.Close()
		return nil, fmt.Errorf("connect to %s: %w", opts.Endpoint, err)
	}

	page, err := selectPage(ctx, browser, opts)
	if err != nil {
		cancel()
		_ = transport.Close()
		return nil, err
	}

	h := &RodHandle{
		endpoint:  opts.Endpoint,
		browser:   browser,
		page:      page.Context(base),
		transport: transport,
		launcher:  opts.Launcher,
		listeners: newListenerSet(),
		ctx:       base,
		cancel:    cancel,
	}
	h.startEventPump()
	return h, nil
}

func selectPage(ctx context.Context, browser *rod.Browser, opts DialOptions) (*rod.Page, error) {
	var page *rod.Page
	if opts.Stealth {
		p, err := stealth.Page(browser.Context(ctx))
		if err != nil {
			return nil, fmt.Errorf("open stealth page: %w", err)
		}
		page = p
	} else {
		pages, err := browser.Context(ctx).Pages()
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		if len(pages) > 0 {
			page = pages.First()
		}
	}

	if page == nil {
		target := opts.URL
		if target == "" {
			target = "about:blank"
		}
		p, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: target})
		if err != nil {
			return nil, fmt.Errorf("create page: %w", err)
		}
		return p, nil
	}

	if opts.URL != "" {
		if err := page.Context(ctx).Navigate(opts.URL); err != nil {
			return nil, fmt.Errorf("navigate %s: %w", opts.URL, err)
		}
		// Best-effort load; a slow page is still a usable page.
		_ = page.Context(ctx).WaitLoad()
	}
	return page, nil
}

func (h *RodHandle) Endpoint() string { return h.endpoint }

func (h *RodHandle) Ping(ctx context.Context) error {
	_, err := h.browser.Context(ctx).Version()
	return err
}

func (h *RodHandle) Evaluate(ctx context.Context, js string, args ...interface{}) (json.RawMessage, error) {
	res, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return json.RawMessage("null"), nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation result: %w", err)
	}
	return raw, nil
}

func (h *RodHandle) CurrentPage(ctx context.Context) (Page, error) {
	info, err := h.page.Context(ctx).Info()
	if err != nil {
		return Page{}, err
	}
	return Page{
		ID:    string(info.TargetID),
		URL:   info.URL,
		Path:  PathOf(info.URL),
		Title: info.Title,
	}, nil
}

func (h *RodHandle) Navigate(ctx context.Context, url string) error {
	p := h.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (h *RodHandle) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return h.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (h *RodHandle) OnEvent(kind EventKind, fn func(Event)) func() {
	return h.listeners.add(kind, fn)
}

func (h *RodHandle) RemoveAllListeners(kind EventKind) {
	h.listeners.removeAll(kind)
}

// Close stops the event pump. A spawned browser is closed and its launcher cleaned
// up; an attached endpoint is only disconnected.
func (h *RodHandle) Close(ctx context.Context) error {
	var err error
	h.closeOnce.Do(func() {
		h.cancel()
		if h.launcher != nil {
			err = h.browser.Context(ctx).Close()
			h.launcher.Kill()
			h.launcher.Cleanup()
			_ = h.transport.Close()
			return
		}
		err = h.transport.Close()
	})
	return err
}

// startEventPump wires CDP events from the page into the listener table.
func (h *RodHandle) startEventPump() {
	wait := h.page.Context(h.ctx).EachEvent(
		func(ev *proto.RuntimeConsoleAPICalled) {
			msg := &ConsoleMessage{
				Level: string(ev.Type),
				Args:  stringifyConsoleArgs(ev.Args),
			}
			msg.Text = strings.Join(msg.Args, " ")
			if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
				top := ev.StackTrace.CallFrames[0]
				msg.URL, msg.Line, msg.Column = top.URL, top.LineNumber, top.ColumnNumber
				msg.StackTrace = formatStack(ev.StackTrace)
			}
			h.listeners.emit(Event{Kind: EventConsole, Time: time.Now(), Console: msg})
		},
		func(ev *proto.RuntimeExceptionThrown) {
			d := ev.ExceptionDetails
			if d == nil {
				return
			}
			exc := &Exception{
				Text:   d.Text,
				URL:    d.URL,
				Line:   d.LineNumber,
				Column: d.ColumnNumber,
			}
			if d.Exception != nil {
				exc.Description = d.Exception.Description
			}
			if d.StackTrace != nil {
				exc.StackTrace = formatStack(d.StackTrace)
			}
			h.listeners.emit(Event{Kind: EventException, Time: time.Now(), Exception: exc})
		},
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Request == nil {
				return
			}
			h.listeners.emit(Event{Kind: EventRequest, Time: time.Now(), Request: &Request{
				RequestID:    string(ev.RequestID),
				Method:       ev.Request.Method,
				URL:          ev.Request.URL,
				ResourceType: strings.ToLower(string(ev.Type)),
				Headers:      flattenHeaders(ev.Request.Headers),
				Initiator:    describeInitiator(ev.Initiator),
			}})
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil {
				return
			}
			h.listeners.emit(Event{Kind: EventResponse, Time: time.Now(), Response: &Response{
				RequestID:  string(ev.RequestID),
				Status:     ev.Response.Status,
				StatusText: ev.Response.StatusText,
				MIMEType:   ev.Response.MIMEType,
				Headers:    flattenHeaders(ev.Response.Headers),
				FromCache:  ev.Response.FromDiskCache,
			}})
		},
		func(ev *proto.NetworkLoadingFailed) {
			h.listeners.emit(Event{Kind: EventRequestFailed, Time: time.Now(), Failure: &RequestFailure{
				RequestID: string(ev.RequestID),
				ErrorText: ev.ErrorText,
				Canceled:  ev.Canceled,
			}})
		},
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame == nil || ev.Frame.ParentID != "" {
				return
			}
			h.listeners.emit(Event{Kind: EventNavigated, Time: time.Now(), Navigation: &Navigation{
				URL:     ev.Frame.URL,
				FrameID: string(ev.Frame.ID),
			}})
		},
	)

	go func() {
		wait()
		log.Printf("[automation] event stream for %s stopped", h.endpoint)
	}()
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) []string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return parts
}

func formatStack(st *proto.RuntimeStackTrace) []string {
	frames := make([]string, 0, len(st.CallFrames))
	for _, f := range st.CallFrames {
		name := f.FunctionName
		if name == "" {
			name = "<anonymous>"
		}
		frames = append(frames, fmt.Sprintf("%s (%s:%d:%d)", name, f.URL, f.LineNumber, f.ColumnNumber))
	}
	return frames
}

func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v.String()
	}
	return out
}

// describeInitiator prefers the first non-internal script frame, then the initiator URL.
func describeInitiator(in *proto.NetworkInitiator) string {
	if in == nil {
		return ""
	}
	if in.Stack != nil {
		for _, f := range in.Stack.CallFrames {
			if f.URL != "" && !isInternalScript(f.URL) {
				return fmt.Sprintf("%s:%d", f.URL, f.LineNumber)
			}
		}
	}
	if in.URL != "" {
		return in.URL
	}
	return string(in.Type)
}

// isInternalScript returns true if the URL is an internal browser script (not app code).
func isInternalScript(url string) bool {
	for _, prefix := range []string{"chrome://", "chrome-extension://", "devtools://", "about:", "data:", "blob:"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
