package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// wsStream adapts a message-oriented *websocket.Conn to the byte-stream
// Stream interface: each Write is one binary message, each Read drains the
// next binary message (buffering any remainder the caller's slice couldn't
// hold). This lets the same Adapter.SendOne logic run unmodified against
// either a raw TCP socket or an MQTT-over-WebSocket broker.
type wsStream struct {
	conn *websocket.Conn
	rest []byte
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Read(p []byte) (int, error) {
	if len(w.rest) == 0 {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.rest = msg
	}
	n := copy(p, w.rest)
	w.rest = w.rest[n:]
	return n, nil
}

func (w *wsStream) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

func (w *wsStream) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *wsStream) Close() error {
	return w.conn.Close()
}

// DialWebSocket connects to a ws:// or wss:// broker endpoint and returns an
// Adapter over it.
func DialWebSocket(ctx context.Context, url string) (*Adapter, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"mqtt"},
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial websocket %s: %w", url, err)
	}
	return New(newWSStream(conn)), nil
}
