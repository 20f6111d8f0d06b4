// Package pipeline moves media between the local devices, the codecs and the
// session connection: gated outbound senders and the inbound receive and
// playout loops.
package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/adapters/rtpx"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
	"github.com/dkeye/voicemedia/internal/media"
)

// Spawn runs fn asynchronously as part of the session's task group. It
// returns false once the session is closing, in which case fn never runs.
type Spawn func(fn func()) bool

// DiagFunc reports a swallowed failure.
type DiagFunc func(source, op string, err error)

type VideoConfig struct {
	Kind domain.StreamKind
	FPS  int
	Kbps int
	MTU  uint16
}

// VideoSender is one outbound video stream (camera or screen). Push is the
// capture tick: it either starts exactly one asynchronous encode-and-send or
// drops the frame.
type VideoSender struct {
	cfg    VideoConfig
	conn   core.MediaConn
	codecs core.CodecFactory
	spawn  Spawn
	diag   DiagFunc
	stats  *app.StreamStats
	rate   *media.FrameRateCap
	pack   *rtpx.VideoPacketizer
	logger zerolog.Logger

	gate        app.InFlightGate
	enabled     atomic.Bool
	keyframe    atomic.Bool
	unavailable atomic.Bool

	// touched only while the gate is held
	enc       core.VideoEncoder
	encW      int
	encH      int
	closeOnce sync.Once
}

func NewVideoSender(cfg VideoConfig, conn core.MediaConn, codecs core.CodecFactory, stats *app.StreamStats, spawn Spawn, diag DiagFunc) *VideoSender {
	if cfg.FPS <= 0 {
		cfg.FPS = cfg.Kind.TargetFPS()
	}
	return &VideoSender{
		cfg:    cfg,
		conn:   conn,
		codecs: codecs,
		spawn:  spawn,
		diag:   diag,
		stats:  stats,
		rate:   media.NewFrameRateCap(cfg.FPS),
		pack:   rtpx.NewVideoPacketizer(rtpx.NewSSRC(), cfg.MTU, cfg.FPS),
		logger: log.With().Str("module", "pipeline").Str("kind", cfg.Kind.String()).Logger(),
	}
}

func (v *VideoSender) SSRC() uint32 { return v.pack.SSRC() }

func (v *VideoSender) Kind() domain.StreamKind { return v.cfg.Kind }

func (v *VideoSender) SetEnabled(on bool) {
	if v.enabled.Swap(on) != on && on {
		v.keyframe.Store(true)
	}
}

func (v *VideoSender) Enabled() bool { return v.enabled.Load() }

// InFlight reports whether a send is outstanding.
func (v *VideoSender) InFlight() bool { return v.gate.Busy() }

// RequestKeyframe makes the next encoded frame a keyframe.
func (v *VideoSender) RequestKeyframe() { v.keyframe.Store(true) }

// Push offers one pushed payload (8-byte header + RGBA). It reports whether
// a send was dispatched.
func (v *VideoSender) Push(payload []byte) bool {
	if !v.enabled.Load() {
		v.stats.Drop(app.DropDisabled)
		return false
	}
	frame, err := media.ParseRGBAFrame(payload)
	if err != nil {
		v.stats.Drop(app.DropInvalid)
		v.logger.Debug().Err(err).Msg("invalid frame dropped")
		return false
	}
	// a tick dropped in flight must not advance the rate cap
	if !v.gate.TryAcquire() {
		v.stats.Drop(app.DropInFlight)
		return false
	}
	if !v.rate.Allow() {
		v.gate.Release()
		v.stats.Drop(app.DropRate)
		return false
	}
	dispatched := v.spawn(func() {
		defer v.gate.Release()
		v.send(frame)
	})
	if !dispatched {
		v.gate.Release()
		v.stats.Drop(app.DropDisabled)
	}
	return dispatched
}

func (v *VideoSender) send(frame media.VideoFrame) {
	enc, err := v.encoderFor(frame.Width, frame.Height)
	if err != nil {
		v.stats.Drop(app.DropCodec)
		if errors.Is(err, core.ErrUnavailable) {
			if !v.unavailable.Swap(true) {
				v.diag("video."+v.cfg.Kind.String(), "encode", err)
			}
			return
		}
		v.diag("video."+v.cfg.Kind.String(), "encoder_init", err)
		return
	}
	forceKey := v.keyframe.Swap(false)
	bs, err := enc.Encode(frame, forceKey)
	if err != nil {
		v.stats.Drop(app.DropCodec)
		v.logger.Debug().Err(err).Msg("encode failed")
		return
	}
	if len(bs) == 0 {
		if forceKey {
			v.keyframe.Store(true)
		}
		v.stats.Drop(app.DropCodec)
		return
	}
	dgs, err := v.pack.Packetize(bs)
	if err != nil {
		v.stats.Drop(app.DropCodec)
		v.logger.Debug().Err(err).Msg("packetize failed")
		return
	}
	for _, dg := range dgs {
		if err := v.conn.SendDatagram(dg); err != nil {
			v.stats.Drop(app.DropTransport)
			v.logger.Debug().Err(err).Msg("datagram send failed")
			return
		}
	}
	v.stats.Sent()
}

func (v *VideoSender) encoderFor(w, h int) (core.VideoEncoder, error) {
	if v.enc != nil && v.encW == w && v.encH == h {
		return v.enc, nil
	}
	if v.enc != nil {
		v.enc.Close()
		v.enc = nil
	}
	kbps := v.cfg.Kbps
	enc, err := v.codecs.NewVideoEncoder(w, h, v.cfg.FPS, kbps)
	if err != nil {
		return nil, err
	}
	v.enc, v.encW, v.encH = enc, w, h
	v.keyframe.Store(true)
	v.logger.Debug().Int("width", w).Int("height", h).Int("kbps", kbps).Msg("video encoder created")
	return enc, nil
}

// Close releases the encoder. Call only after every dispatched send finished.
func (v *VideoSender) Close() {
	v.closeOnce.Do(func() {
		if v.enc != nil {
			v.enc.Close()
			v.enc = nil
		}
	})
}
