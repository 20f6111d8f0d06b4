package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://host:7777":        "host:7777",
		"https://host":             "host:443",
		"http://host":              "host:80",
		"https://host/":            "host:443",
		"https://[::1]:9000":       "[::1]:9000",
		"http://[::1]:9000/path":   "[::1]:9000",
		"relay.example":            "relay.example",
		"relay.example/":           "relay.example",
		"  relay.example:4433//  ": "relay.example:4433",
		"quic://relay:1":           "quic://relay:1",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeEndpoint(in), in)
	}
}

func TestConnectErrorCarriesBothEndpoints(t *testing.T) {
	t.Parallel()

	cause := errors.New("handshake timeout")
	err := error(&ConnectError{Endpoint: "host:443", Source: "https://host/", Err: cause})
	assert.Contains(t, err.Error(), "host:443")
	assert.Contains(t, err.Error(), "https://host/")
	assert.ErrorIs(t, err, cause)

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "host:443", ce.Endpoint)
}

func TestEventJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Event{Name: EventParticipantJoin, Payload: map[string]string{"user_id": "u1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","event":"media_participant_join","payload":{"user_id":"u1"}}`, string(b))
	assert.Equal(t, "media_video_frame_u1", VideoFrameEventName("u1"))
}
