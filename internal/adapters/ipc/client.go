package ipc

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrClientClosed = errors.New("ipc client closed")

type outbound struct {
	kind int
	data []byte
}

// Client is one connected edge process.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan outbound

	mu     sync.RWMutex
	closed bool
}

func newClient(id string, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{id: id, conn: conn, send: make(chan outbound, buffer)}
}

func (c *Client) ID() string { return c.id }

// TrySend queues a message without blocking. A full queue returns
// core.ErrBackpressure and the message is lost.
func (c *Client) TrySend(kind int, data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- outbound{kind: kind, data: data}:
	default:
		return errBackpressure
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
