package pipeline

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicemedia/internal/app"
	"github.com/dkeye/voicemedia/internal/domain"
)

func TestAudioReceiverDecodes(t *testing.T) {
	t.Parallel()

	codecs := &fakeCodecs{}
	r := newAudioReceiver(app.Source{User: "alice", Kind: domain.KindMic})
	r.push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 7}, Payload: []byte{0, 0, 0, 0}})

	_, ok, err := r.next(codecs)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, codecs.decoders)
	r.close()
}

func TestAudioReceiverClosedStaysClosed(t *testing.T) {
	t.Parallel()

	codecs := &fakeCodecs{}
	r := newAudioReceiver(app.Source{User: "alice", Kind: domain.KindMic})
	r.push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 7}, Payload: []byte{0, 0, 0, 0}})
	r.close()

	_, ok, err := r.next(codecs)
	require.NoError(t, err)
	assert.False(t, ok)

	r.push(&rtp.Packet{Header: rtp.Header{SequenceNumber: 8}, Payload: []byte{0, 0, 0, 0}})
	_, ok, err = r.next(codecs)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, codecs.decoders)
}
