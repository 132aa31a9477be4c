package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 5 * time.Second
	maxMessageSize = 64 * 1024
)

// WSConn adapts a gorilla WebSocket connection to Conn using text frames.
type WSConn struct {
	conn *websocket.Conn
}

// NewWSConn wraps an established WebSocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	conn.SetReadLimit(maxMessageSize)
	return &WSConn{conn: conn}
}

// Dial connects to the relay WebSocket URL, e.g. wss://host/signal/room.
func Dial(ctx context.Context, url string) (*WSConn, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling relay: %w", err)
	}
	return NewWSConn(conn), nil
}

func (w *WSConn) WriteMessage(data []byte) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage returns the next text or binary frame payload.
func (w *WSConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

// Close sends a normal close frame (best effort) and closes the socket.
func (w *WSConn) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	return w.conn.Close()
}
