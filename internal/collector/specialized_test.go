package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devlink-mcp-server/internal/automation"
)

func TestConsoleLogRecordsTaggedVariants(t *testing.T) {
	l := NewConsoleLog(3)

	id1, ok := l.Record(automation.Event{Kind: automation.EventConsole, Console: &automation.ConsoleMessage{
		Level: "error", Text: "boom", URL: "http://localhost/app.js", Line: 3, Column: 9,
	}}, "http://localhost/")
	require.True(t, ok)
	id2, ok := l.Record(automation.Event{Kind: automation.EventException, Exception: &automation.Exception{
		Text: "Uncaught", Description: "TypeError: x is undefined",
	}}, "http://localhost/")
	require.True(t, ok)
	_, ok = l.Record(automation.Event{Kind: automation.EventRequest, Request: &automation.Request{}}, "")
	assert.False(t, ok)

	e1, _ := l.Get(id1)
	assert.Equal(t, "error", e1.Type)
	assert.Equal(t, KindConsole, e1.Item.Kind)
	assert.Equal(t, "boom", e1.Item.Text())
	assert.Equal(t, "http://localhost/app.js:3:9", e1.Item.Location())

	e2, _ := l.Get(id2)
	assert.Equal(t, "exception", e2.Type)
	assert.Nil(t, e2.Item.Console)
	assert.Equal(t, "TypeError: x is undefined", e2.Item.Text())

	p := l.Data(Query[LogRecord]{Filter: TypeIn[LogRecord]("exception")})
	require.Len(t, p.Entries, 1)
	assert.Equal(t, id2, p.Entries[0].ID)

	p = l.Data(Query[LogRecord]{Filter: MessageContains("BOOM")})
	require.Len(t, p.Entries, 1)
	assert.Equal(t, id1, p.Entries[0].ID)
}

func TestNetworkLogJoinsResponses(t *testing.T) {
	n := NewNetworkLog(3)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	id, ok := n.Record(automation.Event{Kind: automation.EventRequest, Time: start, Request: &automation.Request{
		RequestID: "r1", Method: "GET", URL: "http://localhost:3000/api/users", ResourceType: "fetch",
	}})
	require.True(t, ok)

	e, _ := n.Get(id)
	assert.Equal(t, "pending", e.Item.State())

	got, ok := n.Record(automation.Event{Kind: automation.EventResponse, Time: start.Add(120 * time.Millisecond), Response: &automation.Response{
		RequestID: "r1", Status: 200, MIMEType: "application/json",
	}})
	require.True(t, ok)
	assert.Equal(t, id, got)

	e, _ = n.Get(id)
	assert.Equal(t, "200", e.Item.State())
	assert.True(t, e.Item.Succeeded())
	assert.Equal(t, 120*time.Millisecond, e.Item.Duration())
	assert.Equal(t, "fetch", e.Type)

	_, ok = n.Record(automation.Event{Kind: automation.EventResponse, Response: &automation.Response{RequestID: "unknown"}})
	assert.False(t, ok)
}

func TestNetworkLogFailuresAndFilters(t *testing.T) {
	n := NewNetworkLog(3)
	req := func(id, url, typ string) {
		n.Record(automation.Event{Kind: automation.EventRequest, Request: &automation.Request{RequestID: id, URL: url, ResourceType: typ}})
	}
	req("a", "http://localhost/index.html", "document")
	req("b", "http://localhost/api/items", "xhr")
	req("c", "http://localhost/api/orders", "fetch")
	req("d", "http://cdn.example.com/lib.js", "script")

	n.Record(automation.Event{Kind: automation.EventResponse, Response: &automation.Response{RequestID: "a", Status: 200}})
	n.Record(automation.Event{Kind: automation.EventResponse, Response: &automation.Response{RequestID: "b", Status: 500}})
	n.Record(automation.Event{Kind: automation.EventRequestFailed, Failure: &automation.RequestFailure{RequestID: "c", ErrorText: "net::ERR_CONNECTION_REFUSED"}})

	failed, err := StatusIs("failed")
	require.NoError(t, err)
	p := n.Data(Query[NetworkRecord]{Filter: failed})
	assert.Equal(t, 2, p.Total)

	success, err := StatusIs("success")
	require.NoError(t, err)
	p = n.Data(Query[NetworkRecord]{Filter: success})
	require.Equal(t, 1, p.Total)
	assert.Equal(t, "a", p.Entries[0].Item.RequestID)

	api, err := URLMatches("*/api/*")
	require.NoError(t, err)
	p = n.Data(Query[NetworkRecord]{Filter: All(api, TypeIn[NetworkRecord]("xhr", "fetch"))})
	assert.Equal(t, 2, p.Total)

	c, _ := n.IDForRequest("c")
	e, _ := n.Get(c)
	assert.Equal(t, "failed (net::ERR_CONNECTION_REFUSED)", e.Item.State())

	_, err = StatusIs("bogus")
	assert.Error(t, err)
	_, err = URLMatches("[unterminated")
	assert.Error(t, err)
}

func TestNetworkLogPrunesIndexOnEviction(t *testing.T) {
	n := NewNetworkLog(1)
	n.Record(automation.Event{Kind: automation.EventRequest, Request: &automation.Request{RequestID: "old"}})
	n.SplitAfterNavigation("http://localhost/next")

	_, ok := n.IDForRequest("old")
	assert.False(t, ok)
	_, ok = n.Record(automation.Event{Kind: automation.EventResponse, Response: &automation.Response{RequestID: "old", Status: 200}})
	assert.False(t, ok)
}

func TestNetworkLogClearResetsIndex(t *testing.T) {
	n := NewNetworkLog(3)
	id, _ := n.Record(automation.Event{Kind: automation.EventRequest, Request: &automation.Request{RequestID: "r"}})
	n.Clear()
	_, ok := n.IDForRequest("r")
	assert.False(t, ok)

	next, _ := n.Record(automation.Event{Kind: automation.EventRequest, Request: &automation.Request{RequestID: "r"}})
	assert.Greater(t, next, id)
}
