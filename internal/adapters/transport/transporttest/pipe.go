// Package transporttest provides an in-memory core.MediaConn for tests.
package transporttest

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"github.com/dkeye/voicemedia/internal/core"
)

// Conn is one end of an in-memory session connection. Datagrams are
// delivered through bounded channels and dropped when the peer is not
// reading, mirroring an unreliable link.
type Conn struct {
	control *ctrl
	in      chan []byte
	peer    *Conn
	done    chan struct{}
	once    *sync.Once

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
	reason  string
}

type ctrl struct {
	*bufio.Reader
	net.Conn
}

func (c *ctrl) Read(p []byte) (int, error) { return c.Reader.Read(p) }

// Pipe returns two connected ends.
func Pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	done := make(chan struct{})
	once := &sync.Once{}
	ca := &Conn{control: &ctrl{bufio.NewReader(a), a}, in: make(chan []byte, 256), done: done, once: once}
	cb := &Conn{control: &ctrl{bufio.NewReader(b), b}, in: make(chan []byte, 256), done: done, once: once}
	ca.peer, cb.peer = cb, ca
	return ca, cb
}

func (c *Conn) Control() io.ReadWriter { return c.control }

func (c *Conn) SendDatagram(b []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrClosed
	}
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	cp := append([]byte(nil), b...)
	c.sent = append(c.sent, cp)
	c.mu.Unlock()
	select {
	case c.peer.in <- cp:
	default:
	}
	return nil
}

func (c *Conn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.done:
		return nil, core.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Close(reason string) error {
	c.once.Do(func() {
		close(c.done)
		_ = c.control.Conn.Close()
		_ = c.peer.control.Conn.Close()
	})
	c.mu.Lock()
	c.closed = true
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
	return nil
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// Sent returns copies of every datagram sent from this end.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// FailSends makes every later SendDatagram return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *Conn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.reason
}

// Dialer hands out the client end of a fresh pipe and passes the relay end
// to Accept. Err, when set, fails the dial.
type Dialer struct {
	Accept func(relay *Conn)
	Err    error

	mu    sync.Mutex
	addrs []string
}

func (d *Dialer) Dial(_ context.Context, addr string) (core.MediaConn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, addr)
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	client, relay := Pipe()
	if d.Accept != nil {
		go d.Accept(relay)
	}
	return client, nil
}

func (d *Dialer) Addrs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addrs...)
}

var _ core.MediaConn = (*Conn)(nil)
