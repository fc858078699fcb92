package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devlink-mcp-server/internal/automation"
)

// Launches a real headless browser; opt in with DEVLINK_LIVE_TESTS=1.
func TestLiveLaunchAndCollect(t *testing.T) {
	if os.Getenv("DEVLINK_LIVE_TESTS") == "" {
		t.Skip("set DEVLINK_LIVE_TESTS=1 to run against a local browser")
	}

	dir := t.TempDir()
	page := `<html><head><title>devlink</title></head><body><script>console.error("live boom")</script></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	adapter, err := DefaultRegistry(DialRod).Lookup(Launch)
	require.NoError(t, err)
	att, err := adapter.Attach(ctx, Params{ProjectPath: dir})
	require.NoError(t, err)
	defer att.Handle.Close(context.Background())

	require.NoError(t, att.Handle.Ping(ctx))
	raw, err := att.Handle.Evaluate(ctx, "() => document.title")
	require.NoError(t, err)
	assert.JSONEq(t, `"devlink"`, string(raw))

	got := make(chan string, 4)
	detach := att.Handle.OnEvent(automation.EventConsole, func(ev automation.Event) {
		select {
		case got <- ev.Console.Text:
		default:
		}
	})
	defer detach()

	require.NoError(t, att.Handle.Navigate(ctx, att.Page.URL))
	select {
	case text := <-got:
		assert.Equal(t, "live boom", text)
	case <-ctx.Done():
		t.Fatal("no console event after reload")
	}
}
