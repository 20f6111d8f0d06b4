package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/adapters/rtpx"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
	"github.com/dkeye/voicemedia/internal/media"
)

// VideoFrameEvent is the JSON part of a media_video_frame_<user> event; the
// frame itself travels as an 8-byte header plus RGBA bytes.
type VideoFrameEvent struct {
	User   domain.UserID `json:"user_id"`
	Kind   string        `json:"kind"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
}

type InboundDeps struct {
	Conn     core.MediaConn
	Codecs   core.CodecFactory
	Registry *app.Registry
	Speaking *app.SpeakingTracker
	Events   core.EventSink
	Playback core.PlaybackSink
	Diag     DiagFunc
	// OnKeyframeRequest receives the local SSRCs named by remote PLIs.
	OnKeyframeRequest func(ssrc uint32)
	LocalSSRC         uint32
}

// Inbound demultiplexes received datagrams into per-SSRC receivers, emits
// speaking and video events and plays remote audio.
type Inbound struct {
	deps   InboundDeps
	logger zerolog.Logger

	deafened atomic.Bool

	vmu   sync.Mutex
	video map[uint32]*videoReceiver

	amu   sync.Mutex
	audio map[uint32]*audioReceiver

	playbackOpen bool
	reported     sync.Map
}

func NewInbound(deps InboundDeps) *Inbound {
	return &Inbound{
		deps:   deps,
		logger: log.With().Str("module", "pipeline").Str("dir", "inbound").Logger(),
		video:  make(map[uint32]*videoReceiver),
		audio:  make(map[uint32]*audioReceiver),
	}
}

func (in *Inbound) SetDeafened(on bool) { in.deafened.Store(on) }

func (in *Inbound) Deafened() bool { return in.deafened.Load() }

// Run reads datagrams until ctx ends or the connection goes away.
func (in *Inbound) Run(ctx context.Context) {
	for {
		b, err := in.deps.Conn.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, core.ErrClosed) {
				in.logger.Debug().Err(err).Msg("datagram loop stopped")
			}
			return
		}
		in.HandleDatagram(b, time.Now())
	}
}

func (in *Inbound) HandleDatagram(b []byte, now time.Time) {
	if rtpx.IsRTCP(b) {
		targets, err := rtpx.PLITargets(b)
		if err != nil {
			in.logger.Debug().Err(err).Msg("bad rtcp")
			return
		}
		if in.deps.OnKeyframeRequest != nil {
			for _, ssrc := range targets {
				in.deps.OnKeyframeRequest(ssrc)
			}
		}
		return
	}
	p, err := rtpx.Parse(b)
	if err != nil {
		in.logger.Debug().Err(err).Msg("bad rtp")
		return
	}
	src, ok := in.deps.Registry.Lookup(p.SSRC)
	if !ok {
		return
	}
	if src.Kind.IsVideo() {
		in.handleVideo(src, p, now)
		return
	}
	in.handleAudio(src, p, now)
}

func (in *Inbound) handleAudio(src app.Source, p *rtp.Packet, now time.Time) {
	if src.Kind == domain.KindMic {
		if level, _, ok := rtpx.AudioLevel(p); ok {
			in.ObserveLevel(src.User, level, now)
		}
	}
	in.amu.Lock()
	r, ok := in.audio[p.SSRC]
	if !ok {
		r = newAudioReceiver(src)
		in.audio[p.SSRC] = r
	}
	in.amu.Unlock()
	r.push(p)
}

// ObserveLevel feeds a -dBov level for user into the speaking tracker.
func (in *Inbound) ObserveLevel(user domain.UserID, level uint8, now time.Time) {
	if levels, changed := in.deps.Speaking.Observe(user, media.Activity(level), now); changed {
		in.deps.Events.Publish(core.Event{Name: core.EventSpeakingChange, Payload: levels})
	}
}

func (in *Inbound) handleVideo(src app.Source, p *rtp.Packet, now time.Time) {
	canvas, subscribed := in.deps.Registry.Subscription(src.User)
	if !subscribed {
		return
	}
	in.vmu.Lock()
	defer in.vmu.Unlock()
	r, ok := in.video[p.SSRC]
	if !ok {
		r = newVideoReceiver(src)
		in.video[p.SSRC] = r
	}
	frames, lost := r.asm.Push(p)
	if lost {
		in.requestKeyframe(r, p.SSRC, now)
	}
	for _, f := range frames {
		in.decodeAndEmit(r, p.SSRC, f, canvas, now)
	}
}

func (in *Inbound) decodeAndEmit(r *videoReceiver, ssrc uint32, frame []byte, canvas app.Canvas, now time.Time) {
	if r.dec == nil {
		dec, err := in.deps.Codecs.NewVideoDecoder()
		if err != nil {
			in.reportOnce("video.decode", err)
			return
		}
		r.dec = dec
	}
	img, err := r.dec.Decode(frame)
	if err != nil {
		in.requestKeyframe(r, ssrc, now)
		return
	}
	rgba := media.RenderToCanvas(img, canvas.Width, canvas.Height)
	b := rgba.Bounds()
	in.deps.Events.Publish(core.Event{
		Name:    core.VideoFrameEventName(string(r.src.User)),
		Payload: VideoFrameEvent{User: r.src.User, Kind: r.src.Kind.String(), Width: b.Dx(), Height: b.Dy()},
		Binary:  media.EncodeVideoPayload(uint32(b.Dx()), uint32(b.Dy()), rgba.Pix),
	})
}

func (in *Inbound) requestKeyframe(r *videoReceiver, ssrc uint32, now time.Time) {
	if now.Sub(r.lastPLI) < pliInterval {
		return
	}
	r.lastPLI = now
	in.SendPLI(ssrc)
}

// SendPLI asks the sender of ssrc for a keyframe.
func (in *Inbound) SendPLI(ssrc uint32) {
	b, err := rtpx.MarshalPLI(in.deps.LocalSSRC, ssrc)
	if err != nil {
		return
	}
	if err := in.deps.Conn.SendDatagram(b); err != nil {
		in.logger.Debug().Err(err).Uint32("ssrc", ssrc).Msg("pli send failed")
	}
}

// Playout mixes one frame from every buffered remote audio stream to the
// playback sink every 20ms, concealing lost packets. While deafened the
// buffers are drained and nothing is played.
func (in *Inbound) Playout(ctx context.Context) {
	tick := time.NewTicker(domain.AudioFrameDur)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			in.PlayoutTick(now)
		}
	}
}

func (in *Inbound) PlayoutTick(now time.Time) {
	if levels, changed := in.deps.Speaking.Tick(now); changed {
		in.deps.Events.Publish(core.Event{Name: core.EventSpeakingChange, Payload: levels})
	}

	in.amu.Lock()
	receivers := make([]*audioReceiver, 0, len(in.audio))
	for _, r := range in.audio {
		receivers = append(receivers, r)
	}
	in.amu.Unlock()

	if in.deafened.Load() {
		for _, r := range receivers {
			r.drain()
		}
		return
	}

	var out []float32
	for _, r := range receivers {
		pcm, ok, err := r.next(in.deps.Codecs)
		if err != nil {
			in.reportOnce("audio.decode", err)
			continue
		}
		if !ok {
			continue
		}
		if out == nil {
			out = make([]float32, media.FrameSamples)
		}
		media.AddInto(out, pcm)
	}
	if out == nil {
		return
	}
	in.play(out)
}

func (in *Inbound) play(pcm []float32) {
	pb := in.deps.Playback
	if pb == nil {
		return
	}
	if !in.playbackOpen {
		if err := pb.Open(); err != nil {
			in.reportOnce("playback.open", err)
			return
		}
		in.playbackOpen = true
	}
	if err := pb.Write(pcm); err != nil {
		in.logger.Debug().Err(err).Msg("playback write failed")
	}
}

// Forget drops the receivers for ssrcs, typically after a participant left.
func (in *Inbound) Forget(ssrcs []uint32) {
	in.vmu.Lock()
	for _, s := range ssrcs {
		if r, ok := in.video[s]; ok {
			r.close()
			delete(in.video, s)
		}
	}
	in.vmu.Unlock()
	in.amu.Lock()
	for _, s := range ssrcs {
		if r, ok := in.audio[s]; ok {
			r.close()
			delete(in.audio, s)
		}
	}
	in.amu.Unlock()
}

// Close releases decoders and the playback device. Call after Run and
// Playout returned.
func (in *Inbound) Close() {
	in.vmu.Lock()
	for s, r := range in.video {
		r.close()
		delete(in.video, s)
	}
	in.vmu.Unlock()
	in.amu.Lock()
	for s, r := range in.audio {
		r.close()
		delete(in.audio, s)
	}
	in.amu.Unlock()
	if in.playbackOpen && in.deps.Playback != nil {
		_ = in.deps.Playback.Close()
		in.playbackOpen = false
	}
}

func (in *Inbound) reportOnce(op string, err error) {
	if _, seen := in.reported.LoadOrStore(op, struct{}{}); seen {
		return
	}
	if in.deps.Diag != nil {
		in.deps.Diag("inbound", op, err)
	}
}
