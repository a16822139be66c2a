package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the part of a websocket connection the client pumps use.
// Tests substitute their own implementation.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
}

// gorillaConn is a gorilla connection whose remote address is reported as a
// string for logging.
type gorillaConn struct {
	*websocket.Conn
}

// NewConnectionWrapper adapts a gorilla connection to Connection
func NewConnectionWrapper(conn *websocket.Conn) Connection {
	return gorillaConn{Conn: conn}
}

// RemoteAddr returns the peer address, or "" when unknown
func (c gorillaConn) RemoteAddr() string {
	if addr := c.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
