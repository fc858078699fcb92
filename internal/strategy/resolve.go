package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// resolveEndpoint turns any accepted endpoint form into a browser ws:// URL.
// ws:// and wss:// URLs are dialed as given; bare ports, host:port pairs and
// http(s) URLs are resolved through the debugger's /json/version document.
func resolveEndpoint(ctx context.Context, endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("endpoint is empty")
	}
	if isDevToolsSocket(endpoint) {
		return endpoint, nil
	}

	base, err := debuggerBase(endpoint)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", endpoint, err)
	}
	ws, err := fetchDebuggerURL(ctx, base)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", endpoint, err)
	}
	return ws, nil
}

// debuggerBase normalizes "9222", "host:9222" and "http://host:9222" forms.
func debuggerBase(endpoint string) (*url.URL, error) {
	raw := endpoint
	if _, err := strconv.Atoi(raw); err == nil {
		raw = "127.0.0.1:" + raw
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

// fetchDebuggerURL reads webSocketDebuggerUrl from /json/version. The request
// is bound to ctx, so a debugger that accepts but never answers is abandoned
// as soon as ctx ends.
func fetchDebuggerURL(ctx context.Context, base *url.URL) (string, error) {
	versionURL := *base
	versionURL.Path = strings.TrimRight(base.Path, "/") + "/json/version"
	versionURL.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version returned %s", resp.Status)
	}
	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return "", fmt.Errorf("decode /json/version: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("no webSocketDebuggerUrl")
	}

	ws, err := url.Parse(info.WebSocketDebuggerURL)
	if err != nil {
		return "", fmt.Errorf("parse webSocketDebuggerUrl: %w", err)
	}
	// The browser reports its own bind address; reach it through the host we asked.
	ws.Host = base.Host
	return ws.String(), nil
}

func isDevToolsSocket(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}
