// Package rtpx wraps pion/rtp and pion/rtcp for the media datagrams carried
// on the session connection.
package rtpx

import (
	"errors"

	"github.com/pion/randutil"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const (
	PayloadTypeOpus uint8 = 111
	PayloadTypeVP9  uint8 = 98

	AudioClockRate uint32 = 48000
	VideoClockRate uint32 = 90000

	// AudioLevelExtensionID is the one-byte header extension slot carrying
	// the RFC 6464 level.
	AudioLevelExtensionID uint8 = 1

	DefaultMTU uint16 = 1100

	opusFrameSamples uint32 = 960
)

var ErrNotRTP = errors.New("rtpx: not an rtp packet")

var ssrcGen = randutil.NewMathRandomGenerator()

// NewSSRC returns a random non-zero SSRC.
func NewSSRC() uint32 {
	for {
		if v := ssrcGen.Uint32(); v != 0 {
			return v
		}
	}
}

// IsRTCP reports whether a datagram carries RTCP (RFC 5761 demux on the
// packet type byte).
func IsRTCP(b []byte) bool {
	return len(b) >= 2 && b[0]>>6 == 2 && b[1] >= 192 && b[1] <= 223
}

// AudioPacketizer turns Opus frames into single-packet RTP datagrams with the
// audio level extension set.
type AudioPacketizer struct {
	p    rtp.Packetizer
	ssrc uint32
}

func NewAudioPacketizer(ssrc uint32, mtu uint16) *AudioPacketizer {
	if mtu == 0 {
		mtu = DefaultMTU
	}
	return &AudioPacketizer{
		p:    rtp.NewPacketizer(mtu, PayloadTypeOpus, ssrc, &codecs.OpusPayloader{}, rtp.NewRandomSequencer(), AudioClockRate),
		ssrc: ssrc,
	}
}

func (a *AudioPacketizer) SSRC() uint32 { return a.ssrc }

func (a *AudioPacketizer) Packetize(opus []byte, level uint8, voice bool) ([][]byte, error) {
	ext, err := rtp.AudioLevelExtension{Level: level & 0x7f, Voice: voice}.Marshal()
	if err != nil {
		return nil, err
	}
	pkts := a.p.Packetize(opus, opusFrameSamples)
	out := make([][]byte, 0, len(pkts))
	for _, p := range pkts {
		if err := p.Header.SetExtension(AudioLevelExtensionID, ext); err != nil {
			return nil, err
		}
		b, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// VideoPacketizer splits one VP9 frame across MTU-sized RTP datagrams; the
// last one carries the marker bit.
type VideoPacketizer struct {
	p    rtp.Packetizer
	ssrc uint32
	step uint32
}

func NewVideoPacketizer(ssrc uint32, mtu uint16, fps int) *VideoPacketizer {
	if mtu == 0 {
		mtu = DefaultMTU
	}
	if fps <= 0 {
		fps = 30
	}
	return &VideoPacketizer{
		p:    rtp.NewPacketizer(mtu, PayloadTypeVP9, ssrc, &codecs.VP9Payloader{FlexibleMode: true}, rtp.NewRandomSequencer(), VideoClockRate),
		ssrc: ssrc,
		step: VideoClockRate / uint32(fps),
	}
}

func (v *VideoPacketizer) SSRC() uint32 { return v.ssrc }

func (v *VideoPacketizer) Packetize(frame []byte) ([][]byte, error) {
	pkts := v.p.Packetize(frame, v.step)
	out := make([][]byte, 0, len(pkts))
	for _, p := range pkts {
		b, err := p.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Parse unmarshals a media datagram.
func Parse(b []byte) (*rtp.Packet, error) {
	if IsRTCP(b) {
		return nil, ErrNotRTP
	}
	p := &rtp.Packet{}
	if err := p.Unmarshal(b); err != nil {
		return nil, err
	}
	return p, nil
}

// AudioLevel reads the level extension. ok is false when it is absent.
func AudioLevel(p *rtp.Packet) (level uint8, voice bool, ok bool) {
	raw := p.Header.GetExtension(AudioLevelExtensionID)
	if raw == nil {
		return 0, false, false
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(raw); err != nil {
		return 0, false, false
	}
	return ext.Level, ext.Voice, true
}

// MarshalPLI builds a keyframe request for mediaSSRC.
func MarshalPLI(senderSSRC, mediaSSRC uint32) ([]byte, error) {
	return rtcp.Marshal([]rtcp.Packet{&rtcp.PictureLossIndication{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}})
}

// PLITargets returns the media SSRCs named by keyframe requests in an RTCP
// datagram. Other RTCP packet types are ignored.
func PLITargets(b []byte) ([]uint32, error) {
	pkts, err := rtcp.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for _, p := range pkts {
		switch v := p.(type) {
		case *rtcp.PictureLossIndication:
			out = append(out, v.MediaSSRC)
		case *rtcp.FullIntraRequest:
			out = append(out, v.MediaSSRC)
		}
	}
	return out, nil
}
