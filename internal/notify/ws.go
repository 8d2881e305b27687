package notify

import (
	"context"

	"github.com/coder/websocket"
)

type wsConn struct {
	c *websocket.Conn
}

// WebSocket адаптирует соединение coder/websocket к Conn.
func WebSocket(c *websocket.Conn) Conn {
	return &wsConn{c: c}
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
