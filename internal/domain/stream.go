package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StreamKind is one of the four logical media channels of a session.
type StreamKind uint8

const (
	KindMic StreamKind = iota
	KindCamera
	KindScreen
	KindScreenAudio
)

// Cadence targets per stream.
const (
	CameraFPS     = 30
	ScreenFPS     = 15
	AudioFrameDur = 20 * time.Millisecond
)

func (k StreamKind) String() string {
	switch k {
	case KindMic:
		return "mic"
	case KindCamera:
		return "camera"
	case KindScreen:
		return "screen"
	case KindScreenAudio:
		return "screen_audio"
	default:
		return "unknown"
	}
}

func (k StreamKind) IsVideo() bool { return k == KindCamera || k == KindScreen }

// TargetFPS is the capped capture rate for the stream.
func (k StreamKind) TargetFPS() int {
	switch k {
	case KindCamera:
		return CameraFPS
	case KindScreen:
		return ScreenFPS
	default:
		return int(time.Second / AudioFrameDur)
	}
}

// Capability is a single media feature the engine can provide on this host.
type Capability uint16

const (
	CapMic Capability = 1 << iota
	CapCamera
	CapScreen
	CapScreenAudio
	CapSystemAudio
	CapPlayback
	CapVideoReceive
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapMic, "mic"},
	{CapCamera, "camera"},
	{CapScreen, "screen"},
	{CapScreenAudio, "screen_audio"},
	{CapSystemAudio, "system_audio"},
	{CapPlayback, "playback"},
	{CapVideoReceive, "video_receive"},
}

// Capabilities is the set advertised at session start.
type Capabilities Capability

func (c Capabilities) Has(f Capability) bool { return Capability(c)&f != 0 }

func (c Capabilities) With(f Capability) Capabilities { return Capabilities(Capability(c) | f) }

// Sends reports whether an outbound stream of kind k can be produced.
func (c Capabilities) Sends(k StreamKind) bool {
	switch k {
	case KindMic:
		return c.Has(CapMic)
	case KindCamera:
		return c.Has(CapCamera)
	case KindScreen:
		return c.Has(CapScreen)
	case KindScreenAudio:
		return c.Has(CapScreenAudio)
	default:
		return false
	}
}

func (c Capabilities) Names() []string {
	out := make([]string, 0, len(capabilityNames))
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			out = append(out, n.name)
		}
	}
	return out
}

func (c Capabilities) String() string { return strings.Join(c.Names(), ",") }

func (c Capabilities) MarshalJSON() ([]byte, error) { return json.Marshal(c.Names()) }

func (c *Capabilities) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var out Capabilities
	for _, name := range names {
		f, ok := capabilityByName(name)
		if !ok {
			return fmt.Errorf("unknown capability %q", name)
		}
		out = out.With(f)
	}
	*c = out
	return nil
}

func capabilityByName(name string) (Capability, bool) {
	for _, n := range capabilityNames {
		if n.name == name {
			return n.c, true
		}
	}
	return 0, false
}
