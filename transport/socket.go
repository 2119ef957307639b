// Package transport wraps gorilla/websocket behind a narrow Socket
// interface so subscriber and reconnect can be exercised against a fake
// transport in tests without opening a real connection.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the minimal duplex frame transport the rest of this module
// depends on.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WritePing() error
	Close() error
}

// Dialer opens a Socket to url. The production Dialer is GorillaDialer;
// tests substitute a fake.
type Dialer func(ctx context.Context, url string) (Socket, error)

// GorillaDialer opens a real TLS WebSocket connection using
// gorilla/websocket, matching the teacher's dial pattern
// (internal/providers/kraken/websocket.go Connect).
func GorillaDialer(ctx context.Context, url string) (Socket, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &gorillaSocket{conn: conn}, nil
}

type gorillaSocket struct {
	conn *websocket.Conn
}

func (s *gorillaSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *gorillaSocket) WriteMessage(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *gorillaSocket) WritePing() error {
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *gorillaSocket) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
