package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Control message type IDs.
const (
	MsgHello            uint64 = 0x01
	MsgWelcome          uint64 = 0x02
	MsgMute             uint64 = 0x10
	MsgDeaf             uint64 = 0x11
	MsgVideo            uint64 = 0x12
	MsgScreenShare      uint64 = 0x13
	MsgScreenAudio      uint64 = 0x14
	MsgSubscribeVideo   uint64 = 0x20
	MsgParticipantJoin  uint64 = 0x30
	MsgParticipantLeave uint64 = 0x31
	MsgGoAway           uint64 = 0x3f
)

// ProtocolVersion is sent in Hello; the relay answers with the version it speaks.
const ProtocolVersion uint64 = 1

const maxPayload = 0xffff

var (
	ErrUnexpectedMessage = errors.New("transport: unexpected control message")
	ErrVersionMismatch   = errors.New("transport: relay speaks an unsupported version")
	ErrPayloadTooLarge   = errors.New("transport: control payload exceeds 65535 bytes")
)

// ParseError records which control message field failed to parse.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("transport: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SSRCs are the RTP sources one participant sends on, one per stream kind.
// Zero means the kind is not sent.
type SSRCs struct {
	Mic         uint32
	Camera      uint32
	Screen      uint32
	ScreenAudio uint32
}

func (s SSRCs) list() [4]uint32 { return [4]uint32{s.Mic, s.Camera, s.Screen, s.ScreenAudio} }

type Hello struct {
	Version      uint64
	Token        string
	Room         string
	Capabilities uint64
	SSRCs        SSRCs
}

type ParticipantInfo struct {
	User  string
	SSRCs SSRCs
}

type Welcome struct {
	Version      uint64
	SessionID    string
	User         string
	Participants []ParticipantInfo
}

// Toggle is the payload of Mute, Deaf, Video, ScreenShare and ScreenAudio.
type Toggle struct {
	On bool
}

type SubscribeVideo struct {
	User   string
	Screen bool
	Width  uint64
	Height uint64
}

type ParticipantLeave struct {
	User string
}

type GoAway struct {
	Reason string
}

// ReadControlMsg reads one message from the control stream.
// Wire format: [message_type (varint)] [message_length (uint16 big-endian)] [payload].
func ReadControlMsg(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		b := bufio.NewReader(r)
		br, r = b, b
	}
	msgType, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("read message length: %w", err)
	}
	payload := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read message payload: %w", err)
		}
	}
	return msgType, payload, nil
}

// WriteControlMsg writes a message in a single Write call.
func WriteControlMsg(w io.Writer, msgType uint64, payload []byte) error {
	if len(payload) > maxPayload {
		return ErrPayloadTooLarge
	}
	buf := quicvarint.Append(make([]byte, 0, 10+len(payload)), msgType)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

func SerializeHello(h Hello) []byte {
	var b []byte
	b = quicvarint.Append(b, h.Version)
	b = appendString(b, h.Token)
	b = appendString(b, h.Room)
	b = quicvarint.Append(b, h.Capabilities)
	return appendSSRCs(b, h.SSRCs)
}

func ParseHello(data []byte) (Hello, error) {
	r := newBufReader(data)
	var h Hello
	var err error
	if h.Version, err = r.readVarint(); err != nil {
		return h, &ParseError{Field: "version", Err: err}
	}
	if h.Token, err = r.readString(); err != nil {
		return h, &ParseError{Field: "token", Err: err}
	}
	if h.Room, err = r.readString(); err != nil {
		return h, &ParseError{Field: "room", Err: err}
	}
	if h.Capabilities, err = r.readVarint(); err != nil {
		return h, &ParseError{Field: "capabilities", Err: err}
	}
	if h.SSRCs, err = r.readSSRCs(); err != nil {
		return h, &ParseError{Field: "ssrcs", Err: err}
	}
	return h, nil
}

func SerializeWelcome(w Welcome) []byte {
	var b []byte
	b = quicvarint.Append(b, w.Version)
	b = appendString(b, w.SessionID)
	b = appendString(b, w.User)
	b = quicvarint.Append(b, uint64(len(w.Participants)))
	for _, p := range w.Participants {
		b = appendParticipant(b, p)
	}
	return b
}

func ParseWelcome(data []byte) (Welcome, error) {
	r := newBufReader(data)
	var w Welcome
	var err error
	if w.Version, err = r.readVarint(); err != nil {
		return w, &ParseError{Field: "version", Err: err}
	}
	if w.SessionID, err = r.readString(); err != nil {
		return w, &ParseError{Field: "session_id", Err: err}
	}
	if w.User, err = r.readString(); err != nil {
		return w, &ParseError{Field: "user", Err: err}
	}
	n, err := r.readVarint()
	if err != nil {
		return w, &ParseError{Field: "num_participants", Err: err}
	}
	if n > uint64(r.remaining()) {
		return w, &ParseError{Field: "num_participants", Err: io.ErrUnexpectedEOF}
	}
	w.Participants = make([]ParticipantInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		p, err := r.readParticipant()
		if err != nil {
			return w, &ParseError{Field: "participant", Err: err}
		}
		w.Participants = append(w.Participants, p)
	}
	return w, nil
}

func SerializeToggle(t Toggle) []byte {
	if t.On {
		return []byte{1}
	}
	return []byte{0}
}

func ParseToggle(data []byte) (Toggle, error) {
	r := newBufReader(data)
	v, err := r.readByte()
	if err != nil {
		return Toggle{}, &ParseError{Field: "on", Err: err}
	}
	return Toggle{On: v != 0}, nil
}

func SerializeSubscribeVideo(s SubscribeVideo) []byte {
	b := appendString(nil, s.User)
	var screen byte
	if s.Screen {
		screen = 1
	}
	b = append(b, screen)
	b = quicvarint.Append(b, s.Width)
	return quicvarint.Append(b, s.Height)
}

func ParseSubscribeVideo(data []byte) (SubscribeVideo, error) {
	r := newBufReader(data)
	var s SubscribeVideo
	var err error
	if s.User, err = r.readString(); err != nil {
		return s, &ParseError{Field: "user", Err: err}
	}
	screen, err := r.readByte()
	if err != nil {
		return s, &ParseError{Field: "screen", Err: err}
	}
	s.Screen = screen != 0
	if s.Width, err = r.readVarint(); err != nil {
		return s, &ParseError{Field: "width", Err: err}
	}
	if s.Height, err = r.readVarint(); err != nil {
		return s, &ParseError{Field: "height", Err: err}
	}
	return s, nil
}

func SerializeParticipantJoin(p ParticipantInfo) []byte { return appendParticipant(nil, p) }

func ParseParticipantJoin(data []byte) (ParticipantInfo, error) {
	p, err := newBufReader(data).readParticipant()
	if err != nil {
		return p, &ParseError{Field: "participant", Err: err}
	}
	return p, nil
}

func SerializeParticipantLeave(p ParticipantLeave) []byte { return appendString(nil, p.User) }

func ParseParticipantLeave(data []byte) (ParticipantLeave, error) {
	u, err := newBufReader(data).readString()
	if err != nil {
		return ParticipantLeave{}, &ParseError{Field: "user", Err: err}
	}
	return ParticipantLeave{User: u}, nil
}

func SerializeGoAway(g GoAway) []byte { return appendString(nil, g.Reason) }

func ParseGoAway(data []byte) (GoAway, error) {
	reason, err := newBufReader(data).readString()
	if err != nil {
		return GoAway{}, &ParseError{Field: "reason", Err: err}
	}
	return GoAway{Reason: reason}, nil
}

func appendString(b []byte, s string) []byte {
	b = quicvarint.Append(b, uint64(len(s)))
	return append(b, s...)
}

func appendSSRCs(b []byte, s SSRCs) []byte {
	for _, v := range s.list() {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	return b
}

func appendParticipant(b []byte, p ParticipantInfo) []byte {
	b = appendString(b, p.User)
	return appendSSRCs(b, p.SSRCs)
}

// bufReader reads control payload fields from a byte slice.
type bufReader struct {
	data []byte
	off  int
}

func newBufReader(data []byte) *bufReader { return &bufReader{data: data} }

func (r *bufReader) remaining() int { return len(r.data) - r.off }

func (r *bufReader) ReadByte() (byte, error) { return r.readByte() }

func (r *bufReader) readByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *bufReader) readVarint() (uint64, error) {
	v, err := quicvarint.Read(r)
	if errors.Is(err, io.EOF) {
		return 0, io.ErrUnexpectedEOF
	}
	return v, err
}

func (r *bufReader) readString() (string, error) {
	n, err := r.readVarint()
	if err != nil {
		return "", err
	}
	if n > uint64(r.remaining()) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *bufReader) readUint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *bufReader) readSSRCs() (SSRCs, error) {
	var vals [4]uint32
	for i := range vals {
		v, err := r.readUint32()
		if err != nil {
			return SSRCs{}, err
		}
		vals[i] = v
	}
	return SSRCs{Mic: vals[0], Camera: vals[1], Screen: vals[2], ScreenAudio: vals[3]}, nil
}

func (r *bufReader) readParticipant() (ParticipantInfo, error) {
	var p ParticipantInfo
	var err error
	if p.User, err = r.readString(); err != nil {
		return p, err
	}
	p.SSRCs, err = r.readSSRCs()
	return p, err
}
