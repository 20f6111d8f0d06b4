package transport

import (
	"context"
	"fmt"

	"github.com/dkeye/voicemedia/internal/core"
)

// Handshake sends Hello on the control stream and waits for the relay's
// Welcome. The caller closes conn if ctx expires.
func Handshake(ctx context.Context, conn core.MediaConn, hello Hello) (Welcome, error) {
	if hello.Version == 0 {
		hello.Version = ProtocolVersion
	}
	if err := WriteControlMsg(conn.Control(), MsgHello, SerializeHello(hello)); err != nil {
		return Welcome{}, fmt.Errorf("send hello: %w", err)
	}

	type result struct {
		w   Welcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		typ, payload, err := ReadControlMsg(conn.Control())
		if err != nil {
			done <- result{err: fmt.Errorf("await welcome: %w", err)}
			return
		}
		switch typ {
		case MsgWelcome:
			w, err := ParseWelcome(payload)
			done <- result{w: w, err: err}
		case MsgGoAway:
			g, _ := ParseGoAway(payload)
			done <- result{err: fmt.Errorf("%w: relay refused session: %s", ErrUnexpectedMessage, g.Reason)}
		default:
			done <- result{err: fmt.Errorf("%w: 0x%x before welcome", ErrUnexpectedMessage, typ)}
		}
	}()

	select {
	case <-ctx.Done():
		return Welcome{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Welcome{}, r.err
		}
		if r.w.Version != ProtocolVersion {
			return Welcome{}, fmt.Errorf("%w: %d", ErrVersionMismatch, r.w.Version)
		}
		return r.w, nil
	}
}
