package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// maxFrameBytes bounds a single CDP message; screenshots and large DOM payloads
// routinely exceed coder/websocket's 32KiB default.
const maxFrameBytes = 256 << 20

// wsTransport carries CDP frames over a coder/websocket connection. It satisfies
// rod's cdp.WebSocketable so the rod client never dials on its own, which lets a
// handle disconnect from an attached endpoint without closing the browser.
type wsTransport struct {
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func dialTransport(ctx context.Context, endpoint string) (*wsTransport, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	tctx, cancel := context.WithCancel(context.Background())
	return &wsTransport{conn: conn, ctx: tctx, cancel: cancel}, nil
}

// Send writes one text frame.
func (t *wsTransport) Send(data []byte) error {
	return t.conn.Write(t.ctx, websocket.MessageText, data)
}

// Read blocks for the next frame.
func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.conn.Read(t.ctx)
	return data, err
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close(websocket.StatusNormalClosure, "detached")
		t.cancel()
	})
	return err
}
