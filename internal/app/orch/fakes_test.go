package orch

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicemedia/internal/adapters/transport"
	"github.com/dkeye/voicemedia/internal/adapters/transport/transporttest"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

// videoOnlyCodecs encodes every frame to a few bytes after a short delay so
// sends stay in flight for a moment. Audio is unavailable.
type videoOnlyCodecs struct {
	delay time.Duration
}

func (c videoOnlyCodecs) VideoAvailable() bool { return true }
func (c videoOnlyCodecs) AudioAvailable() bool { return false }

func (c videoOnlyCodecs) NewVideoEncoder(_, _, _, _ int) (core.VideoEncoder, error) {
	return slowEncoder{delay: c.delay}, nil
}

func (c videoOnlyCodecs) NewVideoDecoder() (core.VideoDecoder, error) { return nopDecoder{}, nil }

func (c videoOnlyCodecs) NewAudioEncoder(int) (core.AudioEncoder, error) {
	return nil, core.ErrUnavailable
}

func (c videoOnlyCodecs) NewAudioDecoder() (core.AudioDecoder, error) {
	return nil, core.ErrUnavailable
}

type slowEncoder struct{ delay time.Duration }

func (e slowEncoder) Encode(media.VideoFrame, bool) ([]byte, error) {
	time.Sleep(e.delay)
	return []byte{1, 2, 3, 4}, nil
}

func (slowEncoder) Close() {}

type nopDecoder struct{}

func (nopDecoder) Decode([]byte) (image.Image, error) { return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil }
func (nopDecoder) Close()                             {}

type relayMsg struct {
	typ     uint64
	payload []byte
}

// fakeRelay answers the handshake and records every later control message.
type fakeRelay struct {
	welcome transport.Welcome
	refuse  string

	hellos chan transport.Hello
	msgs   chan relayMsg
	conns  chan *transporttest.Conn
}

func newFakeRelay(participants ...transport.ParticipantInfo) *fakeRelay {
	return &fakeRelay{
		welcome: transport.Welcome{
			Version:      transport.ProtocolVersion,
			SessionID:    "s-1",
			User:         "alice",
			Participants: participants,
		},
		hellos: make(chan transport.Hello, 4),
		msgs:   make(chan relayMsg, 64),
		conns:  make(chan *transporttest.Conn, 4),
	}
}

func (r *fakeRelay) dialer() *transporttest.Dialer {
	return &transporttest.Dialer{Accept: r.accept}
}

func (r *fakeRelay) accept(c *transporttest.Conn) {
	typ, payload, err := transport.ReadControlMsg(c.Control())
	if err != nil || typ != transport.MsgHello {
		return
	}
	h, err := transport.ParseHello(payload)
	if err != nil {
		return
	}
	r.hellos <- h
	if r.refuse != "" {
		_ = transport.WriteControlMsg(c.Control(), transport.MsgGoAway, transport.SerializeGoAway(transport.GoAway{Reason: r.refuse}))
		return
	}
	if err := transport.WriteControlMsg(c.Control(), transport.MsgWelcome, transport.SerializeWelcome(r.welcome)); err != nil {
		return
	}
	r.conns <- c
	for {
		typ, payload, err := transport.ReadControlMsg(c.Control())
		if err != nil {
			return
		}
		r.msgs <- relayMsg{typ: typ, payload: payload}
	}
}

func (r *fakeRelay) conn(t *testing.T) *transporttest.Conn {
	t.Helper()
	select {
	case c := <-r.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("relay never accepted a session")
		return nil
	}
}

func (r *fakeRelay) next(t *testing.T) relayMsg {
	t.Helper()
	select {
	case m := <-r.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no control message")
		return relayMsg{}
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []core.Event
}

func (l *eventLog) Publish(e core.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *eventLog) named(name string) []core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.Event
	for _, e := range l.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
