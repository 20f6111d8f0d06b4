package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/core"
)

// Binary opcodes. Edge to engine frames carry a video payload (8-byte
// header + RGBA) or f32le screen audio after the opcode byte.
const (
	OpVideoFrame  byte = 0x01
	OpScreenFrame byte = 0x02
	OpScreenAudio byte = 0x03

	// OpEvent prefixes engine to edge binary events:
	// [0x81][name length u16 BE][name][payload].
	OpEvent byte = 0x81
)

var errBackpressure = core.ErrBackpressure

// Hub fans engine events out to every connected client and implements
// core.EventSink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	// audioOwner receives system_audio_chunk events exclusively.
	audioOwner *Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("module", "ipc").Str("client", c.id).Int("clients", n).Msg("client attached")
}

// Remove detaches c and reports whether it owned system audio capture.
func (h *Hub) Remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	owned := h.audioOwner == c
	if owned {
		h.audioOwner = nil
	}
	log.Info().Str("module", "ipc").Str("client", c.id).Int("clients", len(h.clients)).Msg("client detached")
	return owned
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SetAudioOwner(c *Client) {
	h.mu.Lock()
	h.audioOwner = c
	h.mu.Unlock()
}

// ClearAudioOwner releases ownership if c holds it.
func (h *Hub) ClearAudioOwner(c *Client) {
	h.mu.Lock()
	if h.audioOwner == c {
		h.audioOwner = nil
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(e core.Event) {
	kind, data, err := encodeEvent(e)
	if err != nil {
		log.Error().Str("module", "ipc").Str("event", e.Name).Err(err).Msg("encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if e.Name == core.EventSystemAudioChunk {
		if h.audioOwner != nil {
			h.deliver(h.audioOwner, e.Name, kind, data)
		}
		return
	}
	for c := range h.clients {
		h.deliver(c, e.Name, kind, data)
	}
}

func (h *Hub) deliver(c *Client, name string, kind int, data []byte) {
	err := c.TrySend(kind, data)
	switch {
	case err == nil, errors.Is(err, ErrClientClosed):
	case strings.HasPrefix(name, core.EventVideoFramePrefix), name == core.EventSystemAudioChunk:
		log.Debug().Str("module", "ipc").Str("client", c.id).Str("event", name).Msg("event dropped, client slow")
	default:
		log.Warn().Str("module", "ipc").Str("client", c.id).Str("event", name).Err(err).Msg("event dropped")
	}
}

func encodeEvent(e core.Event) (int, []byte, error) {
	if e.Binary == nil {
		b, err := json.Marshal(e)
		return websocket.TextMessage, b, err
	}
	return websocket.BinaryMessage, EncodeBinaryEvent(e.Name, e.Binary), nil
}

func EncodeBinaryEvent(name string, payload []byte) []byte {
	out := make([]byte, 0, 3+len(name)+len(payload))
	out = append(out, OpEvent)
	out = binary.BigEndian.AppendUint16(out, uint16(len(name)))
	out = append(out, name...)
	return append(out, payload...)
}

var errShortEvent = errors.New("binary event too short")

// DecodeBinaryEvent splits a binary event into its name and payload.
func DecodeBinaryEvent(b []byte) (string, []byte, error) {
	if len(b) < 3 || b[0] != OpEvent {
		return "", nil, errShortEvent
	}
	n := int(binary.BigEndian.Uint16(b[1:3]))
	if len(b) < 3+n {
		return "", nil, errShortEvent
	}
	return string(b[3 : 3+n]), b[3+n:], nil
}
