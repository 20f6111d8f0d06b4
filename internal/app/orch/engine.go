// Package orch owns the media session lifecycle and exposes the operations
// the client edge drives over IPC.
package orch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/codec"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
)

// Deps are the explicitly owned resources handed to the engine. Capture
// and playback handles may be nil when the host has no such device.
type Deps struct {
	Dialer   core.Dialer
	Codecs   core.CodecFactory
	Mic      core.AudioSource
	Loopback core.AudioSource
	Playback core.PlaybackSink
	Events   core.EventSink
}

type Options struct {
	CameraFPS         int
	ScreenFPS         int
	CameraKbps        int
	ScreenKbps        int
	VoiceBitrate      int
	StreamBitrate     int
	MTU               uint16
	HandshakeTimeout  time.Duration
	SpeakingThreshold float64
}

func (o *Options) defaults() {
	if o.CameraFPS <= 0 {
		o.CameraFPS = domain.CameraFPS
	}
	if o.ScreenFPS <= 0 {
		o.ScreenFPS = domain.ScreenFPS
	}
	if o.CameraKbps <= 0 {
		o.CameraKbps = codec.DefaultCameraKbps
	}
	if o.ScreenKbps <= 0 {
		o.ScreenKbps = codec.DefaultScreenKbps
	}
	if o.VoiceBitrate <= 0 {
		o.VoiceBitrate = codec.VoiceBitrate
	}
	if o.StreamBitrate <= 0 {
		o.StreamBitrate = codec.StreamBitrate
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
}

// Engine runs at most one session at a time.
type Engine struct {
	deps Deps
	opts Options

	// lifecycle serializes Connect and Disconnect
	lifecycle sync.Mutex
	state     atomic.Int32
	sess      atomic.Pointer[session]

	cmu           sync.Mutex
	connectCancel func()

	prefMuted    atomic.Bool
	prefDeafened atomic.Bool

	loopback *loopbackController
}

func New(deps Deps, opts Options) *Engine {
	opts.defaults()
	if deps.Events == nil {
		deps.Events = core.EventSinkFunc(func(core.Event) {})
	}
	return &Engine{
		deps:     deps,
		opts:     opts,
		loopback: newLoopbackController(deps.Loopback),
	}
}

func (e *Engine) State() domain.SessionState { return domain.SessionState(e.state.Load()) }

func (e *Engine) setState(st domain.SessionState) {
	prev := domain.SessionState(e.state.Swap(int32(st)))
	if prev == st {
		return
	}
	log.Info().Str("module", "orch").Str("from", prev.String()).Str("to", st.String()).Msg("session state")
	e.deps.Events.Publish(core.Event{Name: core.EventSessionState, Payload: map[string]string{"state": st.String()}})
}

// Capabilities advertises which media kinds this build and host support.
func (e *Engine) Capabilities() domain.Capabilities {
	var c domain.Capabilities
	audio := e.deps.Codecs != nil && e.deps.Codecs.AudioAvailable()
	video := e.deps.Codecs != nil && e.deps.Codecs.VideoAvailable()
	if audio && e.deps.Mic != nil && e.deps.Mic.Available() {
		c = c.With(domain.CapMic)
	}
	if video {
		c = c.With(domain.CapCamera).With(domain.CapScreen).With(domain.CapVideoReceive)
	}
	if audio {
		c = c.With(domain.CapScreenAudio)
	}
	if e.deps.Loopback != nil && e.deps.Loopback.Available() {
		c = c.With(domain.CapSystemAudio)
	}
	if audio && e.deps.Playback != nil && e.deps.Playback.Available() {
		c = c.With(domain.CapPlayback)
	}
	return c
}

// Snapshot is the engine status served to the client edge.
type Snapshot struct {
	State        string                       `json:"state"`
	SessionID    string                       `json:"session_id,omitempty"`
	User         domain.UserID                `json:"user_id,omitempty"`
	Room         domain.RoomID                `json:"room_id,omitempty"`
	Endpoint     string                       `json:"endpoint,omitempty"`
	Capabilities domain.Capabilities          `json:"capabilities"`
	Muted        bool                         `json:"muted"`
	Deafened     bool                         `json:"deafened"`
	Video        bool                         `json:"video"`
	ScreenShare  bool                         `json:"screen_share"`
	ScreenAudio  bool                         `json:"screen_audio"`
	SystemAudio  bool                         `json:"system_audio"`
	Participants []domain.UserID              `json:"participants"`
	Stats        map[string]app.StatsSnapshot `json:"stats,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		State:        e.State().String(),
		Capabilities: e.Capabilities(),
		Muted:        e.prefMuted.Load(),
		Deafened:     e.prefDeafened.Load(),
		SystemAudio:  e.loopback.Owner() == ownerSystem,
		Participants: []domain.UserID{},
	}
	if s := e.sess.Load(); s != nil {
		snap.SessionID = s.id
		snap.User = s.user
		snap.Room = s.params.Room
		snap.Endpoint = s.endpoint
		snap.Video = s.camera.Enabled()
		snap.ScreenShare = s.screen.Enabled()
		snap.ScreenAudio = s.audio.ScreenAudio()
		snap.Participants = s.registry.Participants()
		snap.Stats = s.stats.Snapshot()
	}
	return snap
}

// diag logs a swallowed engine-level failure and publishes it.
func (e *Engine) diag(source, op string, err error) {
	publishDiag(e.deps.Events, source, op, err)
}

func publishDiag(sink core.EventSink, source, op string, err error) {
	log.Warn().Str("module", "orch").Str("source", source).Str("op", op).Err(err).Msg("swallowed failure")
	sink.Publish(core.Event{Name: core.EventDiagnostic, Payload: core.Diagnostic{Source: source, Op: op, Error: err.Error()}})
}
