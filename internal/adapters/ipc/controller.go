package ipc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/app/orch"
	"github.com/dkeye/voicemedia/internal/config"
	"github.com/dkeye/voicemedia/internal/domain"
)

// Engine is the part of the media engine driven over IPC.
type Engine interface {
	Connect(ctx context.Context, params domain.SessionParams) error
	Disconnect() error
	SetMute(on bool)
	SetDeaf(on bool)
	EnableVideo(on bool)
	StartScreenShare()
	StopScreenShare()
	SetScreenAudioEnabled(on, native bool) error
	PushVideoFrame(payload []byte) bool
	PushScreenFrame(payload []byte) bool
	PushScreenAudioFrame(samples []float32) error
	StartSystemAudioCapture(sink func(samples []float32)) error
	StopSystemAudioCapture()
	SubscribeVideo(user domain.UserID, canvas app.Canvas, screen bool)
	UnsubscribeVideo(user domain.UserID)
	Snapshot() orch.Snapshot
}

const writeWait = 5 * time.Second

type Controller struct {
	Engine  Engine
	Hub     *Hub
	cfg     config.IPCConfig
	limiter *CommandLimiter
}

func NewController(engine Engine, hub *Hub, cfg config.IPCConfig) *Controller {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	return &Controller{
		Engine:  engine,
		Hub:     hub,
		cfg:     cfg,
		limiter: NewCommandLimiter(cfg.CommandRate, time.Second),
	}
}

var upgrader = websocket.Upgrader{
	// the IPC listener is bound to loopback; the token guards it
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	id := c.GetString(clientIDKey)
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "ipc").Err(err).Msg("ws upgrade")
		return
	}
	client := newClient(id, ws, ctl.cfg.SendBuffer)
	ctl.Hub.Add(client)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, client)
	go ctl.readPump(ctx, cancel, client)
}

func (ctl *Controller) writePump(ctx context.Context, c *Client) {
	ping := time.NewTicker(ctl.cfg.PingPeriod)
	defer ping.Stop()
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
				log.Debug().Str("module", "ipc").Str("client", c.id).Err(err).Msg("write failed")
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *Client) {
	defer func() {
		cancel()
		c.Close()
		if ctl.Hub.Remove(c) {
			ctl.Engine.StopSystemAudioCapture()
		}
		ctl.limiter.Forget(c.id)
	}()

	pongWait := ctl.cfg.PingPeriod * 10 / 9
	if ctl.cfg.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Str("module", "ipc").Str("client", c.id).Err(err).Msg("read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		switch kind {
		case websocket.TextMessage:
			ctl.handleCommand(ctx, c, data)
		case websocket.BinaryMessage:
			ctl.handleBinary(c, data)
		}
	}
}

func (ctl *Controller) sendJSON(c *Client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ipc").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(websocket.TextMessage, b); err != nil {
		log.Warn().Str("module", "ipc").Str("client", c.id).Err(err).Msg("reply dropped")
	}
}
