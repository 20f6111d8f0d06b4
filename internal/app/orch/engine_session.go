package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/voicemedia/internal/adapters/transport"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/app/pipeline"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
)

const controlQueue = 32

var (
	errControlQueueFull = errors.New("control queue full")
	errRemoteClosed     = errors.New("session closed by relay")
)

type controlMsg struct {
	op      string
	typ     uint64
	payload []byte
}

// gatedSink forwards events until detached.
type gatedSink struct {
	next core.EventSink
	off  atomic.Bool
}

func (g *gatedSink) Publish(e core.Event) {
	if g.off.Load() {
		return
	}
	g.next.Publish(e)
}

func (g *gatedSink) detach() { g.off.Store(true) }

// session is one call. Everything in it is created on Connect and released
// by teardown.
type session struct {
	engine   *Engine
	id       string
	user     domain.UserID
	params   domain.SessionParams
	endpoint string
	caps     domain.Capabilities
	conn     core.MediaConn
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closing; spawn holds the read side so no task starts after
	// teardown began waiting.
	mu      sync.RWMutex
	closing bool
	tasks   conc.WaitGroup
	loops   conc.WaitGroup

	events     *gatedSink
	ctrl       chan controlMsg
	micStarted bool

	stats    *app.Stats
	registry *app.Registry
	speaking *app.SpeakingTracker
	camera   *pipeline.VideoSender
	screen   *pipeline.VideoSender
	audio    *pipeline.AudioSender
	inbound  *pipeline.Inbound
}

func (e *Engine) newSession(params domain.SessionParams, endpoint string, conn core.MediaConn, caps domain.Capabilities) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		engine:   e,
		params:   params,
		endpoint: endpoint,
		caps:     caps,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		events:   &gatedSink{next: e.deps.Events},
		ctrl:     make(chan controlMsg, controlQueue),
		stats:    &app.Stats{},
		registry: app.NewRegistry(),
		speaking: app.NewSpeakingTracker(e.opts.SpeakingThreshold, app.DefaultSpeakingHold),
		logger:   log.With().Str("module", "orch").Str("room", string(params.Room)).Logger(),
	}
	s.camera = pipeline.NewVideoSender(pipeline.VideoConfig{
		Kind: domain.KindCamera, FPS: e.opts.CameraFPS, Kbps: e.opts.CameraKbps, MTU: e.opts.MTU,
	}, conn, e.deps.Codecs, s.stats.For(domain.KindCamera), s.spawn, s.diag)
	s.screen = pipeline.NewVideoSender(pipeline.VideoConfig{
		Kind: domain.KindScreen, FPS: e.opts.ScreenFPS, Kbps: e.opts.ScreenKbps, MTU: e.opts.MTU,
	}, conn, e.deps.Codecs, s.stats.For(domain.KindScreen), s.spawn, s.diag)
	s.audio = pipeline.NewAudioSender(pipeline.AudioConfig{
		VoiceBitrate: e.opts.VoiceBitrate, StreamBitrate: e.opts.StreamBitrate, MTU: e.opts.MTU,
	}, conn, e.deps.Codecs, s.stats, s.diag, func(level uint8) {
		s.inbound.ObserveLevel(s.user, level, time.Now())
	})
	s.inbound = pipeline.NewInbound(pipeline.InboundDeps{
		Conn:              conn,
		Codecs:            e.deps.Codecs,
		Registry:          s.registry,
		Speaking:          s.speaking,
		Events:            s.events,
		Playback:          e.deps.Playback,
		Diag:              s.diag,
		OnKeyframeRequest: s.keyframeRequested,
		LocalSSRC:         s.audio.SSRC(),
	})
	s.audio.SetMuted(e.prefMuted.Load())
	s.inbound.SetDeafened(e.prefDeafened.Load())
	return s
}

// spawn runs fn as a session task unless teardown has begun.
func (s *session) spawn(fn func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closing {
		return false
	}
	s.tasks.Go(fn)
	return true
}

func (s *session) diag(source, op string, err error) {
	publishDiag(s.events, source, op, err)
}

func (s *session) localSSRCs() transport.SSRCs {
	var out transport.SSRCs
	if s.caps.Has(domain.CapMic) || s.caps.Has(domain.CapScreenAudio) {
		out.Mic = s.audio.SSRC()
	}
	if s.caps.Has(domain.CapCamera) {
		out.Camera = s.camera.SSRC()
	}
	if s.caps.Has(domain.CapScreen) {
		out.Screen = s.screen.SSRC()
	}
	return out
}

func (s *session) keyframeRequested(ssrc uint32) {
	switch ssrc {
	case s.camera.SSRC():
		s.camera.RequestKeyframe()
	case s.screen.SSRC():
		s.screen.RequestKeyframe()
	}
}

// sendControl queues a control message. Delivery failures surface as
// diagnostics, never to the caller.
func (s *session) sendControl(op string, typ uint64, payload []byte) {
	select {
	case s.ctrl <- controlMsg{op: op, typ: typ, payload: payload}:
	default:
		s.diag("control", op, errControlQueueFull)
	}
}

func (s *session) toggle(op string, typ uint64, on bool) {
	s.sendControl(op, typ, transport.SerializeToggle(transport.Toggle{On: on}))
}

func (s *session) writeControl() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.ctrl:
			if err := transport.WriteControlMsg(s.conn.Control(), m.typ, m.payload); err != nil {
				s.diag("control", m.op, err)
			}
		}
	}
}

func (s *session) readControl() {
	for {
		typ, payload, err := transport.ReadControlMsg(s.conn.Control())
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("control stream ended")
				go s.engine.dropSession(s, err)
			}
			return
		}
		s.handleControl(typ, payload)
	}
}

func (s *session) handleControl(typ uint64, payload []byte) {
	switch typ {
	case transport.MsgParticipantJoin:
		p, err := transport.ParseParticipantJoin(payload)
		if err != nil {
			s.diag("control", "participant_join", err)
			return
		}
		s.join(p)
	case transport.MsgParticipantLeave:
		p, err := transport.ParseParticipantLeave(payload)
		if err != nil {
			s.diag("control", "participant_leave", err)
			return
		}
		s.leave(domain.UserID(p.User))
	case transport.MsgGoAway:
		g, _ := transport.ParseGoAway(payload)
		s.logger.Info().Str("reason", g.Reason).Msg("relay sent goaway")
		go s.engine.dropSession(s, fmt.Errorf("%w: %s", errRemoteClosed, g.Reason))
	default:
		s.logger.Debug().Uint64("type", typ).Msg("ignoring control message")
	}
}

func ssrcsByKind(in transport.SSRCs) map[domain.StreamKind]uint32 {
	return map[domain.StreamKind]uint32{
		domain.KindMic:         in.Mic,
		domain.KindCamera:      in.Camera,
		domain.KindScreen:      in.Screen,
		domain.KindScreenAudio: in.ScreenAudio,
	}
}

func (s *session) join(p transport.ParticipantInfo) {
	user, err := domain.ParseUserID(p.User)
	if err != nil {
		s.diag("control", "participant_join", err)
		return
	}
	if user == s.user {
		return
	}
	if !s.registry.AddParticipant(user, ssrcsByKind(p.SSRCs)) {
		// rejoined with new sources; a subscribed view needs a fresh keyframe
		if _, ok := s.registry.Subscription(user); ok {
			s.requestVideo(user)
		}
		return
	}
	s.events.Publish(core.Event{Name: core.EventParticipantJoin, Payload: domain.Participant{User: user}})
}

func (s *session) leave(user domain.UserID) {
	ssrcs, ok := s.registry.RemoveParticipant(user)
	if !ok {
		return
	}
	s.inbound.Forget(ssrcs)
	s.registry.Unsubscribe(user)
	if levels, changed := s.speaking.Remove(user); changed {
		s.events.Publish(core.Event{Name: core.EventSpeakingChange, Payload: levels})
	}
	s.events.Publish(core.Event{Name: core.EventParticipantLeave, Payload: domain.Participant{User: user}})
}

// requestVideo sends a PLI for every video source of user.
func (s *session) requestVideo(user domain.UserID) {
	for _, kind := range []domain.StreamKind{domain.KindCamera, domain.KindScreen} {
		if ssrc, ok := s.registry.SSRCOf(user, kind); ok {
			s.inbound.SendPLI(ssrc)
		}
	}
}

func (s *session) watchConn() {
	select {
	case <-s.ctx.Done():
	case <-s.conn.Done():
		if s.ctx.Err() == nil {
			go s.engine.dropSession(s, core.ErrClosed)
		}
	}
}

// start launches the long-running session loops.
func (s *session) start(welcome transport.Welcome) {
	s.loops.Go(s.readControl)
	s.loops.Go(s.writeControl)
	s.loops.Go(s.watchConn)
	s.loops.Go(func() { s.inbound.Run(s.ctx) })
	s.loops.Go(func() { s.inbound.Playout(s.ctx) })

	var mic <-chan core.AudioChunk
	if s.caps.Has(domain.CapMic) {
		ch := make(chan core.AudioChunk, 8)
		if err := startCapture(s.ctx, s.engine.deps.Mic, ch); err != nil {
			s.diag("mic", "start", err)
		} else {
			mic = ch
			s.micStarted = true
		}
	}
	s.loops.Go(func() { s.audio.Run(s.ctx, mic) })

	for _, p := range welcome.Participants {
		s.join(p)
	}
}

// Connect opens a new session. Any existing session is torn down first.
// On failure the engine is back in Idle and the error is a *core.ConnectError.
func (e *Engine) Connect(ctx context.Context, params domain.SessionParams) error {
	endpoint := core.NormalizeEndpoint(params.Endpoint)
	if err := params.Validate(); err != nil {
		return &core.ConnectError{Endpoint: endpoint, Source: params.Endpoint, Err: err}
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cmu.Lock()
	e.connectCancel = cancel
	e.cmu.Unlock()
	defer func() {
		e.cmu.Lock()
		e.connectCancel = nil
		e.cmu.Unlock()
	}()

	if old := e.sess.Load(); old != nil {
		e.teardown(old, "reconnect")
	}

	e.setState(domain.StateConnecting)
	s, welcome, err := e.open(ctx, params, endpoint)
	if err != nil {
		log.Warn().Str("module", "orch").Str("endpoint", endpoint).Err(err).Msg("connect failed")
		e.setState(domain.StateIdle)
		return &core.ConnectError{Endpoint: endpoint, Source: params.Endpoint, Err: err}
	}

	e.sess.Store(s)
	s.start(welcome)
	e.setState(domain.StateActive)
	s.events.Publish(core.Event{Name: core.EventCapabilities, Payload: s.caps})
	if s.audio.Muted() {
		s.toggle("mute", transport.MsgMute, true)
	}
	if s.inbound.Deafened() {
		s.toggle("deaf", transport.MsgDeaf, true)
	}
	s.logger.Info().Str("sid", s.id).Str("user", string(s.user)).Str("endpoint", endpoint).Msg("session active")
	return nil
}

func (e *Engine) open(ctx context.Context, params domain.SessionParams, endpoint string) (*session, transport.Welcome, error) {
	hctx, cancel := context.WithTimeout(ctx, e.opts.HandshakeTimeout)
	defer cancel()

	conn, err := e.deps.Dialer.Dial(hctx, endpoint)
	if err != nil {
		return nil, transport.Welcome{}, fmt.Errorf("dial: %w", err)
	}
	caps := e.Capabilities()
	s := e.newSession(params, endpoint, conn, caps)
	welcome, err := transport.Handshake(hctx, conn, transport.Hello{
		Token:        params.Token,
		Room:         string(params.Room),
		Capabilities: uint64(caps),
		SSRCs:        s.localSSRCs(),
	})
	if err != nil {
		_ = conn.Close("handshake failed")
		s.cancel()
		s.release()
		return nil, transport.Welcome{}, err
	}

	s.id = welcome.SessionID
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.user = domain.UserID(welcome.User)
	s.logger = s.logger.With().Str("sid", s.id).Logger()
	return s, welcome, nil
}

// Disconnect ends the current session. Calling it with no session, or
// twice, is a no-op.
func (e *Engine) Disconnect() error {
	e.cmu.Lock()
	if e.connectCancel != nil {
		e.connectCancel()
	}
	e.cmu.Unlock()

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if s := e.sess.Load(); s != nil {
		e.teardown(s, "disconnect")
	}
	return nil
}

// dropSession tears s down after the relay or the link ended it.
func (e *Engine) dropSession(s *session, cause error) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.sess.Load() != s {
		return
	}
	s.diag("session", "remote_close", cause)
	e.teardown(s, "remote close")
}

// teardown stops capture and timers, detaches events, closes the transport
// and waits for every task. Caller holds e.lifecycle.
func (e *Engine) teardown(s *session, reason string) {
	e.setState(domain.StateClosing)

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
	e.loopback.Stop(ownerScreen)
	if s.micStarted {
		if err := e.deps.Mic.Stop(); err != nil {
			s.logger.Debug().Err(err).Msg("stop mic")
		}
	}

	s.events.detach()
	if err := s.conn.Close(reason); err != nil {
		s.logger.Debug().Err(err).Msg("close transport")
	}

	if r := s.tasks.WaitAndRecover(); r != nil {
		s.logger.Error().Err(r.AsError()).Msg("media task panicked")
	}
	if r := s.loops.WaitAndRecover(); r != nil {
		s.logger.Error().Err(r.AsError()).Msg("session loop panicked")
	}
	s.release()

	e.sess.CompareAndSwap(s, nil)
	s.logger.Info().Str("reason", reason).Msg("session closed")
	e.setState(domain.StateClosed)
}

func (s *session) release() {
	s.camera.Close()
	s.screen.Close()
	s.audio.Close()
	s.inbound.Close()
	s.registry.Reset()
	s.speaking.Reset()
}
