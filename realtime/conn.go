package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Sender is the transport handle the registry stores. The websocket
// handler passes a *Conn; tests substitute fakes.
type Sender interface {
	Send(v interface{}) error
	Close() error
}

// Conn wraps a gorilla connection with a write lock. Gorilla sockets
// allow only one concurrent writer, and broadcasts run on a different
// goroutine than the per-connection read loop replies.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
