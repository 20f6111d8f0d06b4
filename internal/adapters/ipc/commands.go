package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/domain"
	"github.com/dkeye/voicemedia/internal/media"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgs        = errors.New("bad arguments")
	ErrRateLimited    = errors.New("rate limited")
)

// request is one JSON command from the edge.
type request struct {
	ID   string          `json:"id"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

type response struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type handlerFunc func(ctx context.Context, ctl *Controller, c *Client, args json.RawMessage) (any, error)

type command struct {
	fn handlerFunc
	// async commands block on the network and reply when done
	async bool
	// push commands carry media and bypass the rate limit
	push bool
}

var commands = map[string]command{
	"start_voice_session":            {fn: startVoiceSession, async: true},
	"stop_voice_session":             {fn: stopVoiceSession, async: true},
	"voice_set_mute":                 {fn: setMute},
	"voice_set_deaf":                 {fn: setDeaf},
	"voice_enable_video":             {fn: enableVideo},
	"voice_push_video_frame":         {fn: pushVideoFrame, push: true},
	"voice_push_screen_frame":        {fn: pushScreenFrame, push: true},
	"voice_start_screen_share":       {fn: startScreenShare},
	"voice_stop_screen_share":        {fn: stopScreenShare},
	"voice_set_screen_audio_enabled": {fn: setScreenAudioEnabled},
	"voice_push_screen_audio_frame":  {fn: pushScreenAudioFrame, push: true},
	"start_system_audio_capture":     {fn: startSystemAudioCapture},
	"stop_system_audio_capture":      {fn: stopSystemAudioCapture},
	"media_subscribe_video":          {fn: subscribeVideo},
	"media_unsubscribe_video":        {fn: unsubscribeVideo},
	"media_get_state":                {fn: getState},
}

func (ctl *Controller) handleCommand(ctx context.Context, c *Client, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Warn().Str("module", "ipc").Str("client", c.id).Err(err).Msg("bad json")
		ctl.reply(c, "", nil, fmt.Errorf("%w: %v", ErrBadArgs, err))
		return
	}
	cmd, ok := commands[req.Cmd]
	if !ok {
		log.Warn().Str("module", "ipc").Str("cmd", req.Cmd).Msg("unknown command")
		ctl.reply(c, req.ID, nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Cmd))
		return
	}
	if !cmd.push && !ctl.limiter.Allow(c.id) {
		ctl.reply(c, req.ID, nil, ErrRateLimited)
		return
	}
	log.Debug().Str("module", "ipc").Str("client", c.id).Str("cmd", req.Cmd).Msg("command")
	if cmd.async {
		go func() {
			out, err := cmd.fn(ctx, ctl, c, req.Args)
			ctl.reply(c, req.ID, out, err)
		}()
		return
	}
	out, err := cmd.fn(ctx, ctl, c, req.Args)
	ctl.reply(c, req.ID, out, err)
}

func (ctl *Controller) reply(c *Client, id string, data any, err error) {
	resp := response{Type: "result", ID: id, OK: err == nil, Data: data}
	if err != nil {
		resp.Error = err.Error()
	}
	ctl.sendJSON(c, resp)
}

func (ctl *Controller) handleBinary(c *Client, data []byte) {
	if len(data) < 1 {
		return
	}
	body := data[1:]
	switch data[0] {
	case OpVideoFrame:
		ctl.Engine.PushVideoFrame(body)
	case OpScreenFrame:
		ctl.Engine.PushScreenFrame(body)
	case OpScreenAudio:
		samples := media.DecodeInterleaved(body, 1, media.FormatF32LE)
		if err := ctl.Engine.PushScreenAudioFrame(samples); err != nil {
			log.Debug().Str("module", "ipc").Str("client", c.id).Err(err).Msg("screen audio frame rejected")
		}
	default:
		log.Warn().Str("module", "ipc").Str("client", c.id).Uint8("op", data[0]).Msg("unknown binary opcode")
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return nil
}

type enabledArgs struct {
	Enabled bool `json:"enabled"`
}

func boolArg(raw json.RawMessage) (bool, error) {
	var a enabledArgs
	err := decodeArgs(raw, &a)
	return a.Enabled, err
}

type sessionArgs struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
	RoomID   string `json:"roomId"`
}

func startVoiceSession(ctx context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	var a sessionArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	err := ctl.Engine.Connect(ctx, domain.SessionParams{Endpoint: a.Endpoint, Token: a.Token, Room: domain.RoomID(a.RoomID)})
	if err != nil {
		return nil, err
	}
	return ctl.Engine.Snapshot(), nil
}

func stopVoiceSession(_ context.Context, ctl *Controller, _ *Client, _ json.RawMessage) (any, error) {
	return nil, ctl.Engine.Disconnect()
}

func setMute(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	on, err := boolArg(raw)
	if err != nil {
		return nil, err
	}
	ctl.Engine.SetMute(on)
	return nil, nil
}

func setDeaf(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	on, err := boolArg(raw)
	if err != nil {
		return nil, err
	}
	ctl.Engine.SetDeaf(on)
	return nil, nil
}

func enableVideo(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	on, err := boolArg(raw)
	if err != nil {
		return nil, err
	}
	ctl.Engine.EnableVideo(on)
	return nil, nil
}

type frameArgs struct {
	Frame []byte `json:"frame"`
}

type pushResult struct {
	Sent bool `json:"sent"`
}

func pushVideoFrame(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	var a frameArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return pushResult{Sent: ctl.Engine.PushVideoFrame(a.Frame)}, nil
}

func pushScreenFrame(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	var a frameArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return pushResult{Sent: ctl.Engine.PushScreenFrame(a.Frame)}, nil
}

func startScreenShare(_ context.Context, ctl *Controller, _ *Client, _ json.RawMessage) (any, error) {
	ctl.Engine.StartScreenShare()
	return nil, nil
}

func stopScreenShare(_ context.Context, ctl *Controller, _ *Client, _ json.RawMessage) (any, error) {
	ctl.Engine.StopScreenShare()
	return nil, nil
}

type screenAudioArgs struct {
	Enabled bool `json:"enabled"`
	Native  bool `json:"native"`
}

func setScreenAudioEnabled(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	var a screenAudioArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return nil, ctl.Engine.SetScreenAudioEnabled(a.Enabled, a.Native)
}

type samplesArgs struct {
	Samples []float32 `json:"samples"`
}

func pushScreenAudioFrame(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	var a samplesArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return nil, ctl.Engine.PushScreenAudioFrame(a.Samples)
}

type audioChunk struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// startSystemAudioCapture streams loopback audio to the requesting client
// only, as system_audio_chunk events.
func startSystemAudioCapture(_ context.Context, ctl *Controller, c *Client, _ json.RawMessage) (any, error) {
	ctl.Hub.SetAudioOwner(c)
	err := ctl.Engine.StartSystemAudioCapture(func(samples []float32) {
		ctl.Hub.Publish(core.Event{Name: core.EventSystemAudioChunk, Payload: audioChunk{Samples: samples, SampleRate: media.SampleRate}})
	})
	if err != nil {
		ctl.Hub.ClearAudioOwner(c)
		return nil, err
	}
	return nil, nil
}

func stopSystemAudioCapture(_ context.Context, ctl *Controller, c *Client, _ json.RawMessage) (any, error) {
	ctl.Engine.StopSystemAudioCapture()
	ctl.Hub.ClearAudioOwner(c)
	return nil, nil
}

// largest canvas a subscriber may ask for (8K UHD)
const (
	maxCanvasWidth  = 7680
	maxCanvasHeight = 4320
)

type subscribeArgs struct {
	UserID string `json:"userId"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Screen bool   `json:"screen"`
}

func subscribeVideo(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	var a subscribeArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	user, err := domain.ParseUserID(a.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	if a.Width <= 0 || a.Height <= 0 || a.Width > maxCanvasWidth || a.Height > maxCanvasHeight {
		return nil, fmt.Errorf("%w: canvas %dx%d", ErrBadArgs, a.Width, a.Height)
	}
	ctl.Engine.SubscribeVideo(user, app.Canvas{Width: a.Width, Height: a.Height}, a.Screen)
	return nil, nil
}

func unsubscribeVideo(_ context.Context, ctl *Controller, _ *Client, raw json.RawMessage) (any, error) {
	var a subscribeArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	user, err := domain.ParseUserID(a.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	ctl.Engine.UnsubscribeVideo(user)
	return nil, nil
}

func getState(_ context.Context, ctl *Controller, _ *Client, _ json.RawMessage) (any, error) {
	return ctl.Engine.Snapshot(), nil
}
