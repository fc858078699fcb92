package collector

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"devlink-mcp-server/internal/automation"
)

// NetworkRecord is one request, completed in place by its response or failure.
type NetworkRecord struct {
	RequestID       string            `json:"request_id"`
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	ResourceType    string            `json:"resource_type"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	Initiator       string            `json:"initiator,omitempty"`
	Status          int               `json:"status,omitempty"`
	StatusText      string            `json:"status_text,omitempty"`
	MIMEType        string            `json:"mime_type,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	FromCache       bool              `json:"from_cache,omitempty"`
	Failed          bool              `json:"failed,omitempty"`
	ErrorText       string            `json:"error_text,omitempty"`
	Canceled        bool              `json:"canceled,omitempty"`
	Started         time.Time         `json:"started"`
	Finished        time.Time         `json:"finished,omitempty"`
}

// EventType is the resource type; requests without one are "other".
func (r NetworkRecord) EventType() string {
	if r.ResourceType == "" {
		return "other"
	}
	return r.ResourceType
}

// Succeeded reports a completed request with a non-error status.
func (r NetworkRecord) Succeeded() bool {
	return !r.Failed && r.Status > 0 && r.Status < 400
}

// IsFailure reports a transport failure or an HTTP error status.
func (r NetworkRecord) IsFailure() bool {
	return r.Failed || r.Status >= 400
}

// State is "pending", "failed (<reason>)" or the HTTP status code.
func (r NetworkRecord) State() string {
	switch {
	case r.Failed:
		return fmt.Sprintf("failed (%s)", r.ErrorText)
	case r.Status == 0:
		return "pending"
	default:
		return strconv.Itoa(r.Status)
	}
}

// Duration is the time to completion, or 0 while pending.
func (r NetworkRecord) Duration() time.Duration {
	if r.Finished.IsZero() || r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// NetworkLog collects requests and joins responses and failures onto them
// through a request-id index that is pruned with evicted segments.
type NetworkLog struct {
	*Collector[NetworkRecord]

	mu      sync.Mutex
	byReqID map[string]int64
}

// NewNetworkLog returns a network collector keeping maxNavigations segments.
func NewNetworkLog(maxNavigations int) *NetworkLog {
	n := &NetworkLog{
		Collector: New[NetworkRecord](maxNavigations),
		byReqID:   make(map[string]int64),
	}
	n.Collector.OnEvict(n.prune)
	return n
}

// Record applies a request, response or failure event. It returns the stable
// id the event landed on.
func (n *NetworkLog) Record(ev automation.Event) (int64, bool) {
	switch ev.Kind {
	case automation.EventRequest:
		if ev.Request == nil {
			return 0, false
		}
		r := ev.Request
		id := n.Collect(NetworkRecord{
			RequestID:      r.RequestID,
			Method:         r.Method,
			URL:            r.URL,
			ResourceType:   r.ResourceType,
			RequestHeaders: r.Headers,
			Initiator:      r.Initiator,
			Started:        eventTime(ev),
		})
		n.mu.Lock()
		n.byReqID[r.RequestID] = id
		n.mu.Unlock()
		return id, true

	case automation.EventResponse:
		if ev.Response == nil {
			return 0, false
		}
		resp := ev.Response
		return n.complete(resp.RequestID, func(rec *NetworkRecord) {
			rec.Status = resp.Status
			rec.StatusText = resp.StatusText
			rec.MIMEType = resp.MIMEType
			rec.ResponseHeaders = resp.Headers
			rec.FromCache = resp.FromCache
			rec.Finished = eventTime(ev)
		})

	case automation.EventRequestFailed:
		if ev.Failure == nil {
			return 0, false
		}
		f := ev.Failure
		return n.complete(f.RequestID, func(rec *NetworkRecord) {
			rec.Failed = true
			rec.ErrorText = f.ErrorText
			rec.Canceled = f.Canceled
			rec.Finished = eventTime(ev)
		})
	}
	return 0, false
}

// IDForRequest maps a protocol request id to its stable id.
func (n *NetworkLog) IDForRequest(requestID string) (int64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, ok := n.byReqID[requestID]
	return id, ok
}

// Clear empties the collector and the request index.
func (n *NetworkLog) Clear() {
	n.Collector.Clear()
	n.mu.Lock()
	n.byReqID = make(map[string]int64)
	n.mu.Unlock()
}

func (n *NetworkLog) complete(requestID string, fn func(*NetworkRecord)) (int64, bool) {
	id, ok := n.IDForRequest(requestID)
	if !ok {
		return 0, false
	}
	if !n.Update(id, fn) {
		return 0, false
	}
	return id, true
}

func (n *NetworkLog) prune(evicted []Entry[NetworkRecord]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range evicted {
		if n.byReqID[e.Item.RequestID] == e.ID {
			delete(n.byReqID, e.Item.RequestID)
		}
	}
}

func eventTime(ev automation.Event) time.Time {
	if ev.Time.IsZero() {
		return time.Now()
	}
	return ev.Time
}

// URLMatches compiles a glob such as "*/api/*" into a URL filter. An empty
// pattern matches everything.
func URLMatches(pattern string) (Filter[NetworkRecord], error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	return func(e Entry[NetworkRecord]) bool { return g.Match(e.Item.URL) }, nil
}

// StatusIs filters by outcome: "success", "failed", or "all"/"" for everything.
func StatusIs(status string) (Filter[NetworkRecord], error) {
	switch status {
	case "", "all":
		return nil, nil
	case "success":
		return func(e Entry[NetworkRecord]) bool { return e.Item.Succeeded() }, nil
	case "failed":
		return func(e Entry[NetworkRecord]) bool { return e.Item.IsFailure() }, nil
	default:
		return nil, fmt.Errorf("invalid status filter %q (want all, success or failed)", status)
	}
}
