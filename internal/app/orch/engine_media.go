package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/adapters/transport"
	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
	"github.com/dkeye/voicemedia/internal/media"
)

// current returns the live session or reports a diagnostic for op.
func (e *Engine) current(op string) *session {
	s := e.sess.Load()
	if s == nil {
		e.diag("session", op, core.ErrNoSession)
	}
	return s
}

// SetMute stops sending microphone audio. The choice is remembered for the
// next session as well.
func (e *Engine) SetMute(on bool) {
	e.prefMuted.Store(on)
	if s := e.sess.Load(); s != nil {
		s.audio.SetMuted(on)
		s.toggle("mute", transport.MsgMute, on)
	}
}

// SetDeaf stops remote audio playback.
func (e *Engine) SetDeaf(on bool) {
	e.prefDeafened.Store(on)
	if s := e.sess.Load(); s != nil {
		s.inbound.SetDeafened(on)
		s.toggle("deaf", transport.MsgDeaf, on)
	}
}

func (e *Engine) EnableVideo(on bool) {
	s := e.current("enable_video")
	if s == nil {
		return
	}
	if on && !s.caps.Has(domain.CapCamera) {
		s.diag("video.camera", "enable", core.ErrUnavailable)
	}
	s.camera.SetEnabled(on)
	s.toggle("video", transport.MsgVideo, on)
}

func (e *Engine) StartScreenShare() { e.setScreenShare(true) }

func (e *Engine) StopScreenShare() { e.setScreenShare(false) }

func (e *Engine) setScreenShare(on bool) {
	s := e.current("screen_share")
	if s == nil {
		return
	}
	if on && !s.caps.Has(domain.CapScreen) {
		s.diag("video.screen", "enable", core.ErrUnavailable)
	}
	s.screen.SetEnabled(on)
	s.toggle("screen_share", transport.MsgScreenShare, on)
}

// SetScreenAudioEnabled toggles screen audio mixing. With native set the
// engine captures the loopback device itself; otherwise the client edge
// pushes batches through PushScreenAudioFrame. Only a native capture
// failure after its single retry is returned.
func (e *Engine) SetScreenAudioEnabled(on, native bool) error {
	s := e.current("screen_audio")
	if s == nil {
		return core.ErrNoSession
	}
	if !on {
		e.loopback.Stop(ownerScreen)
		s.audio.SetScreenAudio(false)
		s.toggle("screen_audio", transport.MsgScreenAudio, false)
		s.publishScreenAudio(false, false)
		return nil
	}

	s.audio.SetScreenAudio(true)
	if native {
		acc := media.NewAccumulator(media.FrameSamples)
		err := e.loopback.Start(ownerScreen, func(chunk core.AudioChunk) {
			samples := chunk.Samples
			if chunk.SampleRate != 0 && chunk.SampleRate != media.SampleRate {
				samples = media.Resample(samples, chunk.SampleRate, media.SampleRate)
			}
			for _, frame := range acc.Push(samples) {
				_ = s.audio.PushScreenAudio(frame)
			}
		})
		if err != nil {
			s.audio.SetScreenAudio(false)
			s.diag("screen_audio", "capture_start", err)
			s.publishScreenAudio(false, true)
			return err
		}
		if e.sess.Load() != s {
			e.loopback.Stop(ownerScreen)
			return core.ErrNoSession
		}
	} else {
		e.loopback.Stop(ownerScreen)
	}
	s.toggle("screen_audio", transport.MsgScreenAudio, true)
	s.publishScreenAudio(true, native)
	return nil
}

func (s *session) publishScreenAudio(on, native bool) {
	s.events.Publish(core.Event{Name: core.EventScreenAudioStatus, Payload: map[string]bool{"enabled": on, "native": native}})
}

// PushVideoFrame offers one camera frame (8-byte header + RGBA). Frames are
// dropped while a previous one is still being sent.
func (e *Engine) PushVideoFrame(payload []byte) bool {
	s := e.sess.Load()
	if s == nil {
		return false
	}
	return s.camera.Push(payload)
}

func (e *Engine) PushScreenFrame(payload []byte) bool {
	s := e.sess.Load()
	if s == nil {
		return false
	}
	return s.screen.Push(payload)
}

// PushScreenAudioFrame hands over one 960-sample mono batch from the edge.
func (e *Engine) PushScreenAudioFrame(samples []float32) error {
	s := e.sess.Load()
	if s == nil {
		return core.ErrNoSession
	}
	return s.audio.PushScreenAudio(samples)
}

// SubscribeVideo starts delivering user's decoded video scaled to canvas.
func (e *Engine) SubscribeVideo(user domain.UserID, canvas app.Canvas, screen bool) {
	s := e.current("subscribe_video")
	if s == nil {
		return
	}
	s.registry.Subscribe(user, canvas)
	s.sendControl("subscribe_video", transport.MsgSubscribeVideo, transport.SerializeSubscribeVideo(transport.SubscribeVideo{
		User:   string(user),
		Screen: screen,
		Width:  uint64(canvas.Width),
		Height: uint64(canvas.Height),
	}))
	s.requestVideo(user)
}

func (e *Engine) UnsubscribeVideo(user domain.UserID) {
	if s := e.sess.Load(); s != nil {
		s.registry.Unsubscribe(user)
	}
}

// StartSystemAudioCapture streams raw loopback audio to sink until
// StopSystemAudioCapture. It takes the device over from native screen
// audio forwarding.
func (e *Engine) StartSystemAudioCapture(sink func(samples []float32)) error {
	if s := e.sess.Load(); s != nil && e.loopback.Owner() == ownerScreen {
		s.audio.SetScreenAudio(false)
		s.publishScreenAudio(false, true)
	}
	acc := media.NewAccumulator(media.FrameSamples)
	err := e.loopback.Start(ownerSystem, func(chunk core.AudioChunk) {
		samples := chunk.Samples
		if chunk.SampleRate != 0 && chunk.SampleRate != media.SampleRate {
			samples = media.Resample(samples, chunk.SampleRate, media.SampleRate)
		}
		for _, frame := range acc.Push(samples) {
			sink(frame)
		}
	})
	if err != nil {
		if !errors.Is(err, core.ErrUnavailable) {
			log.Error().Str("module", "orch").Err(err).Msg("system audio capture failed")
		}
		e.diag("system_audio", "start", err)
		return err
	}
	return nil
}

func (e *Engine) StopSystemAudioCapture() {
	e.loopback.Stop(ownerSystem)
}

// Close ends the session and releases engine-owned devices.
func (e *Engine) Close() error {
	err := e.Disconnect()
	e.loopback.Stop(ownerNone)
	return err
}
