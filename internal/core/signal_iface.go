package core

import "encoding/json"

const (
	EventSpeakingChange    = "media_speaking_change"
	EventParticipantJoin   = "media_participant_join"
	EventParticipantLeave  = "media_participant_leave"
	EventVideoFramePrefix  = "media_video_frame_"
	EventDiagnostic        = "media_diagnostic"
	EventSessionState      = "media_session_state"
	EventSystemAudioChunk  = "system_audio_chunk"
	EventCapabilities      = "media_capabilities"
	EventScreenAudioStatus = "media_screen_audio_status"
)

// Event is an engine notification for the client edge. Binary carries raw
// frame bytes for video events; everything else travels in Payload.
type Event struct {
	Name    string
	Payload any
	Binary  []byte
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Name    string `json:"event"`
		Payload any    `json:"payload,omitempty"`
	}{"event", e.Name, e.Payload})
}

// EventSink receives engine events. Implementations must not block.
type EventSink interface {
	Publish(Event)
}

type EventSinkFunc func(Event)

func (f EventSinkFunc) Publish(e Event) { f(e) }

// Diagnostic is the payload of EventDiagnostic.
type Diagnostic struct {
	Source string `json:"source"`
	Op     string `json:"op"`
	Error  string `json:"error"`
}

// VideoFrameEventName is the per-user event carrying decoded frames.
func VideoFrameEventName(user string) string { return EventVideoFramePrefix + user }
