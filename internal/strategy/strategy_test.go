package strategy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devlink-mcp-server/internal/automation"
	"devlink-mcp-server/internal/automation/automationtest"
)

type recordingDialer struct {
	opts []automation.DialOptions
	err  error
}

func (d *recordingDialer) dial(_ context.Context, opts automation.DialOptions) (automation.Handle, error) {
	d.opts = append(d.opts, opts)
	if d.err != nil {
		return nil, d.err
	}
	return automationtest.New(opts.Endpoint, "http://localhost:3000/pages/index"), nil
}

// debuggerServer answers /json/version like a Chromium remote debugger.
func debuggerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Browser":"Chrome/120","webSocketDebuggerUrl":"ws://127.0.0.1:1/devtools/browser/abc"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry(nil)
	assert.Equal(t, []string{Connect, Discover, Launch}, r.Names())

	a, err := r.Lookup(" Connect ")
	require.NoError(t, err)
	assert.Equal(t, Connect, a.Name())

	_, err = r.Lookup("teleport")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown strategy "teleport"`)
}

func TestParamsMerge(t *testing.T) {
	headful := false
	base := Params{ProjectPath: "/app", Endpoint: "ws://a", Port: 9222, Args: []string{"--x"}}
	merged := base.Merge(Params{Endpoint: "ws://b", Headless: &headful, DiscoveryPorts: []int{1}})

	assert.Equal(t, "/app", merged.ProjectPath)
	assert.Equal(t, "ws://b", merged.Endpoint)
	assert.Equal(t, 9222, merged.Port)
	assert.False(t, merged.IsHeadless())
	assert.Equal(t, []int{1}, merged.DiscoveryPorts)
	assert.Equal(t, []string{"--x"}, merged.Args)
	assert.True(t, base.IsHeadless())
}

func TestConnectUsesDevToolsSocketAsGiven(t *testing.T) {
	d := &recordingDialer{}
	a := &ConnectAdapter{Dial: d.dial}

	att, err := a.Attach(context.Background(), Params{Endpoint: "ws://127.0.0.1:9421/devtools/browser/xyz"})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9421/devtools/browser/xyz", att.Endpoint)
	assert.Equal(t, "/pages/index", att.Page.Path)
	require.Len(t, d.opts, 1)
	assert.Nil(t, d.opts[0].Launcher)
}

func TestConnectDialsWebSocketWithoutDevToolsPath(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	d := &recordingDialer{}
	a := &ConnectAdapter{Dial: d.dial}
	att, err := a.Attach(context.Background(), Params{Endpoint: "ws://" + host})
	require.NoError(t, err)
	assert.Equal(t, "ws://"+host, att.Endpoint)
	require.Len(t, d.opts, 1)
	assert.Equal(t, "ws://"+host, d.opts[0].Endpoint)
	assert.Zero(t, hits)
}

func TestConnectResolvesDebuggerAddress(t *testing.T) {
	srv := debuggerServer(t)
	d := &recordingDialer{}
	a := &ConnectAdapter{Dial: d.dial}

	att, err := a.Attach(context.Background(), Params{Endpoint: srv.URL})
	require.NoError(t, err)
	host := strings.TrimPrefix(srv.URL, "http://")
	assert.Equal(t, "ws://"+host+"/devtools/browser/abc", att.Endpoint)
}

func TestConnectRequiresEndpoint(t *testing.T) {
	a := &ConnectAdapter{Dial: (&recordingDialer{}).dial}
	_, err := a.Attach(context.Background(), Params{})
	require.EqualError(t, err, "endpoint is required")
}

func TestConnectWrapsDialFailure(t *testing.T) {
	a := &ConnectAdapter{Dial: (&recordingDialer{err: errors.New("handshake refused")}).dial}
	_, err := a.Attach(context.Background(), Params{Endpoint: "ws://127.0.0.1:9421/devtools/browser/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake refused")
}

func TestDiscoverSkipsDeadPorts(t *testing.T) {
	srv := debuggerServer(t)
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	live, _ := strconv.Atoi(portStr)
	dead := closedPort(t)

	d := &recordingDialer{}
	a := &DiscoverAdapter{Dial: d.dial}
	att, err := a.Attach(context.Background(), Params{
		DiscoveryHosts: []string{"127.0.0.1"},
		DiscoveryPorts: []int{dead, live},
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:"+portStr+"/devtools/browser/abc", att.Endpoint)
	assert.Len(t, d.opts, 1)
}

func TestDiscoverNothingFound(t *testing.T) {
	dead := closedPort(t)
	a := &DiscoverAdapter{Dial: (&recordingDialer{}).dial}
	_, err := a.Attach(context.Background(), Params{
		DiscoveryHosts: []string{"127.0.0.1"},
		DiscoveryPorts: []int{dead},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no debugger found")
}

func TestDiscoveryCandidatesOrder(t *testing.T) {
	got := discoveryCandidates(Params{
		Endpoint:       "ws://explicit/devtools/browser/1",
		Port:           9000,
		DiscoveryHosts: []string{"127.0.0.1"},
		DiscoveryPorts: []int{9222, 9000},
	})
	assert.Equal(t, []string{"ws://explicit/devtools/browser/1", "127.0.0.1:9000", "127.0.0.1:9222"}, got)
}

func TestResolveEndpointHonorsContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	// Accept and never answer.
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = resolveEndpoint(ctx, ln.Addr().String())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveEndpointReleasesRequestOnCancel(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := resolveEndpoint(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("debugger request still in flight after the context ended")
	}
}

func TestResolveEndpointRejectsMissingSocketURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Browser":"Chrome/120"}`))
	}))
	defer srv.Close()

	_, err := resolveEndpoint(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webSocketDebuggerUrl")
}

func TestEntryURL(t *testing.T) {
	dir := t.TempDir()

	u, err := entryURL(Params{ProjectPath: dir})
	require.NoError(t, err)
	assert.Equal(t, "", u)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644))
	u, err = entryURL(Params{ProjectPath: dir})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/index.html"))

	u, err = entryURL(Params{ProjectPath: dir, URL: "http://localhost:5173"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173", u)

	_, err = entryURL(Params{ProjectPath: filepath.Join(dir, "missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project path")
}

func TestIsDevToolsSocket(t *testing.T) {
	assert.True(t, isDevToolsSocket("ws://127.0.0.1:9421/devtools/browser/x"))
	assert.True(t, isDevToolsSocket("wss://host/devtools/page/y"))
	assert.True(t, isDevToolsSocket("ws://127.0.0.1:9421"))
	assert.True(t, isDevToolsSocket("ws://127.0.0.1:9421/session"))
	assert.False(t, isDevToolsSocket("http://127.0.0.1:9222/devtools/browser/x"))
	assert.False(t, isDevToolsSocket("9222"))
	assert.False(t, isDevToolsSocket("ws://"))
}

func TestDebuggerBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"9222", "http://127.0.0.1:9222"},
		{"localhost:9222", "http://localhost:9222"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000"},
		{"https://debugger.local:443", "https://debugger.local:443"},
	}
	for _, tt := range tests {
		u, err := debuggerBase(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, u.String())
	}

	_, err := debuggerBase("ftp://host:21")
	assert.Error(t, err)
}
