package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/adapters/rtpx"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
	"github.com/dkeye/voicemedia/internal/media"
)

var ErrFrameSize = fmt.Errorf("screen audio frame must hold %d samples", media.FrameSamples)

type AudioConfig struct {
	VoiceBitrate  int
	StreamBitrate int
	MTU           uint16
}

// AudioSender produces the single outbound Opus stream: microphone audio
// with forwarded screen audio mixed in. Without a microphone it runs on its
// own 20ms clock so screen audio still flows.
type AudioSender struct {
	cfg     AudioConfig
	conn    core.MediaConn
	diag    DiagFunc
	stats   *app.Stats
	pack    *rtpx.AudioPacketizer
	onLevel func(level uint8)
	logger  zerolog.Logger

	enc     core.AudioEncoder
	bitrate int

	muted        atomic.Bool
	screenAudio  atomic.Bool
	screenGate   app.InFlightGate
	screenMu     sync.Mutex
	screenFrame  []float32
	encodeFailed atomic.Bool
}

// NewAudioSender builds the sender. A nil encoder (codec unavailable) keeps
// the sender alive but every frame is dropped.
func NewAudioSender(cfg AudioConfig, conn core.MediaConn, codecs core.CodecFactory, stats *app.Stats, diag DiagFunc, onLevel func(uint8)) *AudioSender {
	a := &AudioSender{
		cfg:     cfg,
		conn:    conn,
		diag:    diag,
		stats:   stats,
		pack:    rtpx.NewAudioPacketizer(rtpx.NewSSRC(), cfg.MTU),
		onLevel: onLevel,
		logger:  log.With().Str("module", "pipeline").Str("kind", "audio").Logger(),
	}
	enc, err := codecs.NewAudioEncoder(cfg.VoiceBitrate)
	if err != nil {
		diag("audio", "encoder_init", err)
	} else {
		a.enc = enc
		a.bitrate = cfg.VoiceBitrate
	}
	return a
}

func (a *AudioSender) SSRC() uint32 { return a.pack.SSRC() }

func (a *AudioSender) SetMuted(on bool) { a.muted.Store(on) }

func (a *AudioSender) Muted() bool { return a.muted.Load() }

// SetScreenAudio toggles forwarding. Disabling discards a pending batch.
func (a *AudioSender) SetScreenAudio(on bool) {
	a.screenAudio.Store(on)
	if !on {
		a.screenMu.Lock()
		pending := a.screenFrame != nil
		a.screenFrame = nil
		a.screenMu.Unlock()
		if pending {
			a.screenGate.Release()
		}
	}
}

func (a *AudioSender) ScreenAudio() bool { return a.screenAudio.Load() }

// PushScreenAudio hands over one 960-sample mono batch. While the previous
// batch has not been mixed yet the new one is dropped.
func (a *AudioSender) PushScreenAudio(samples []float32) error {
	st := a.stats.For(domain.KindScreenAudio)
	if len(samples) != media.FrameSamples {
		st.Drop(app.DropInvalid)
		return ErrFrameSize
	}
	if !a.screenAudio.Load() {
		st.Drop(app.DropDisabled)
		return nil
	}
	if !a.screenGate.TryAcquire() {
		st.Drop(app.DropInFlight)
		return nil
	}
	frame := make([]float32, len(samples))
	copy(frame, samples)
	a.screenMu.Lock()
	a.screenFrame = frame
	a.screenMu.Unlock()
	return nil
}

// takeScreen consumes the pending batch; each batch is mixed at most once.
func (a *AudioSender) takeScreen() []float32 {
	a.screenMu.Lock()
	f := a.screenFrame
	a.screenFrame = nil
	a.screenMu.Unlock()
	if f != nil {
		a.screenGate.Release()
	}
	return f
}

// Run drives the sender until ctx ends. mic may be nil.
func (a *AudioSender) Run(ctx context.Context, mic <-chan core.AudioChunk) {
	tick := time.NewTicker(domain.AudioFrameDur)
	defer tick.Stop()
	acc := media.NewAccumulator(media.FrameSamples)
	var lastMic time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-mic:
			if !ok {
				mic = nil
				continue
			}
			samples := chunk.Samples
			if chunk.SampleRate != 0 && chunk.SampleRate != media.SampleRate {
				samples = media.Resample(samples, chunk.SampleRate, media.SampleRate)
			}
			for _, f := range acc.Push(samples) {
				a.Process(f, true)
			}
			lastMic = time.Now()
		case now := <-tick.C:
			if now.Sub(lastMic) > 2*domain.AudioFrameDur {
				a.Process(nil, false)
			}
		}
	}
}

// Process builds and sends one 20ms frame from an optional mic frame and
// the pending screen-audio batch.
func (a *AudioSender) Process(mic []float32, hasMic bool) {
	screen := a.takeScreen()
	muted := a.muted.Load()

	pcm := make([]float32, media.FrameSamples)
	if hasMic && !muted {
		copy(pcm, mic)
	}
	level := media.AudioLevel(pcm)
	if hasMic && a.onLevel != nil {
		if muted {
			a.onLevel(media.Silence)
		} else {
			a.onLevel(level)
		}
	}

	micSt := a.stats.For(domain.KindMic)
	if screen == nil && (!hasMic || muted) {
		if hasMic {
			micSt.Drop(app.DropDisabled)
		}
		return
	}
	if screen != nil {
		media.MixInto(pcm, screen)
		level = media.AudioLevel(pcm)
	}

	if a.enc == nil {
		micSt.Drop(app.DropCodec)
		return
	}
	a.applyBitrate()
	bs, err := a.enc.Encode(pcm)
	if err != nil {
		micSt.Drop(app.DropCodec)
		if !a.encodeFailed.Swap(true) {
			a.diag("audio", "encode", err)
		}
		return
	}
	dgs, err := a.pack.Packetize(bs, level, level < media.Silence)
	if err != nil {
		micSt.Drop(app.DropCodec)
		return
	}
	for _, dg := range dgs {
		if err := a.conn.SendDatagram(dg); err != nil {
			micSt.Drop(app.DropTransport)
			if !errors.Is(err, core.ErrClosed) {
				a.logger.Debug().Err(err).Msg("datagram send failed")
			}
			return
		}
	}
	micSt.Sent()
	if screen != nil {
		a.stats.For(domain.KindScreenAudio).Sent()
	}
}

// applyBitrate moves to the stream bitrate while screen audio is forwarded.
func (a *AudioSender) applyBitrate() {
	want := a.cfg.VoiceBitrate
	if a.screenAudio.Load() {
		want = a.cfg.StreamBitrate
	}
	if want == a.bitrate || want <= 0 {
		return
	}
	if err := a.enc.SetBitrate(want); err != nil {
		a.diag("audio", "set_bitrate", err)
		return
	}
	a.logger.Debug().Int("bitrate", want).Msg("audio bitrate changed")
	a.bitrate = want
}

// Bitrate is the encoder's current target.
func (a *AudioSender) Bitrate() int { return a.bitrate }

// Close releases the encoder once Run has returned.
func (a *AudioSender) Close() {
	if a.enc != nil {
		a.enc.Close()
		a.enc = nil
	}
}
