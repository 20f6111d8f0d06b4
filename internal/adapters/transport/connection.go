// Package transport carries a media session over one QUIC connection: a
// bidirectional control stream plus RTP/RTCP in unreliable datagrams.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/certs"
	"github.com/dkeye/voicemedia/internal/core"
)

const (
	DefaultALPN = "voicemedia/1"

	closeCodeNormal quic.ApplicationErrorCode = 0
)

type Config struct {
	ALPN               string
	ServerName         string
	InsecureSkipVerify bool
	// CertFingerprint pins the relay certificate by SHA-256 (hex or base64).
	CertFingerprint  string
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	KeepAlive        time.Duration
}

// Dialer opens session connections to the relay.
type Dialer struct {
	tls  *tls.Config
	quic *quic.Config
}

func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.ALPN == "" {
		cfg.ALPN = DefaultALPN
	}
	tlsConf := &tls.Config{
		NextProtos:         []string{cfg.ALPN},
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS13,
	}
	if cfg.CertFingerprint != "" {
		fp, err := certs.ParseFingerprint(cfg.CertFingerprint)
		if err != nil {
			return nil, err
		}
		// the pin replaces chain verification
		tlsConf.InsecureSkipVerify = true
		tlsConf.VerifyPeerCertificate = certs.PinnedVerifier(fp)
	}
	return &Dialer{
		tls:  tlsConf,
		quic: QUICConfig(cfg),
	}, nil
}

// QUICConfig is shared by the dialer and test relays.
func QUICConfig(cfg Config) *quic.Config {
	qc := &quic.Config{
		EnableDatagrams:      true,
		HandshakeIdleTimeout: cfg.HandshakeTimeout,
		MaxIdleTimeout:       cfg.IdleTimeout,
		KeepAlivePeriod:      cfg.KeepAlive,
	}
	if qc.KeepAlivePeriod == 0 {
		qc.KeepAlivePeriod = 5 * time.Second
	}
	return qc
}

func (d *Dialer) Dial(ctx context.Context, addr string) (core.MediaConn, error) {
	conn, err := quic.DialAddr(ctx, addr, d.tls.Clone(), d.quic)
	if err != nil {
		return nil, fmt.Errorf("quic dial: %w", err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(closeCodeNormal, "control stream failed")
		return nil, fmt.Errorf("open control stream: %w", err)
	}
	log.Debug().Str("module", "quic").Str("addr", addr).Str("remote", conn.RemoteAddr().String()).Msg("connected")
	return NewConn(conn, stream), nil
}

// Conn adapts a QUIC connection and its control stream to core.MediaConn.
type Conn struct {
	conn    *quic.Conn
	control *controlStream
	once    sync.Once
}

type controlStream struct {
	*bufio.Reader
	w *quic.Stream
}

func (c *controlStream) Write(p []byte) (int, error) { return c.w.Write(p) }

func NewConn(conn *quic.Conn, stream *quic.Stream) *Conn {
	return &Conn{conn: conn, control: &controlStream{Reader: bufio.NewReader(stream), w: stream}}
}

// Control returns the control stream. Reads are buffered and implement
// io.ByteReader.
func (c *Conn) Control() io.ReadWriter { return c.control }

func (c *Conn) SendDatagram(b []byte) error { return c.conn.SendDatagram(b) }

func (c *Conn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return c.conn.ReceiveDatagram(ctx)
}

func (c *Conn) Close(reason string) error {
	var err error
	c.once.Do(func() {
		_ = c.control.w.Close()
		err = c.conn.CloseWithError(closeCodeNormal, reason)
	})
	return err
}

func (c *Conn) Done() <-chan struct{} { return c.conn.Context().Done() }

var _ core.MediaConn = (*Conn)(nil)
