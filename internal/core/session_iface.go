package core

import (
	"context"
	"io"
)

// MediaConn is one established transport connection to the relay: a single
// ordered control stream plus unreliable datagrams for media.
// Owned by the session; the session must Close() it.
type MediaConn interface {
	Control() io.ReadWriter
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	Close(reason string) error
	// Done is closed when the connection is gone for any reason.
	Done() <-chan struct{}
}

type Dialer interface {
	Dial(ctx context.Context, addr string) (MediaConn, error)
}
