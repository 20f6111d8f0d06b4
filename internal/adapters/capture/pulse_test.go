package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

// helperCommand re-runs the test binary as a fake parec. It writes
// interleaved frames, in the channel count it was asked for, whose mono
// average is 0.5, until killed.
func helperCommand(ctx context.Context, _ string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
	cmd.Env = append(os.Environ(), "VOICEMEDIA_HELPER=1")
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("VOICEMEDIA_HELPER") != "1" {
		return
	}
	channels := 1
	for _, arg := range os.Args {
		if n, ok := strings.CutPrefix(arg, "--channels="); ok {
			channels, _ = strconv.Atoi(n)
		}
	}
	frame := make([]float32, media.FrameSamples*channels)
	for i := range frame {
		switch {
		case channels == 1:
			frame[i] = 0.5
		case i%channels == 0:
			frame[i] = 0.25
		case i%channels == 1:
			frame[i] = 0.75
		default:
			frame[i] = 0.5
		}
	}
	b := media.EncodeF32LE(frame)
	for {
		if _, err := os.Stdout.Write(b); err != nil {
			os.Exit(0)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func found(string) (string, error)   { return "/usr/bin/parec", nil }
func missing(string) (string, error) { return "", exec.ErrNotFound }

func TestSourceUnavailable(t *testing.T) {
	t.Parallel()

	s := NewLoopback(Config{LookPath: missing})
	assert.False(t, s.Available())
	err := s.Start(context.Background(), make(chan core.AudioChunk, 1))
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.NoError(t, s.Stop())
}

func TestSourceStartTwiceIsRunningError(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("pulse capture is linux only")
	}
	t.Parallel()

	s := NewLoopback(Config{LookPath: found, Command: helperCommand})
	out := make(chan core.AudioChunk, 8)
	require.NoError(t, s.Start(context.Background(), out))
	defer s.Stop()

	err := s.Start(context.Background(), out)
	assert.True(t, errors.Is(err, core.ErrCaptureRunning))

	select {
	case chunk := <-out:
		require.Len(t, chunk.Samples, media.FrameSamples)
		assert.Equal(t, float32(0.5), chunk.Samples[0])
		assert.Equal(t, media.SampleRate, chunk.SampleRate)
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk from capture")
	}

	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(context.Background(), out))
	require.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestSinkUnavailable(t *testing.T) {
	t.Parallel()

	s := NewSink(Config{LookPath: missing})
	assert.ErrorIs(t, s.Open(), core.ErrUnavailable)
	assert.ErrorIs(t, s.Write([]float32{0}), core.ErrClosed)
	assert.NoError(t, s.Close())
}

func TestPulseArgs(t *testing.T) {
	t.Parallel()

	args := pulseArgs(MonitorDevice, 2, false)
	assert.Contains(t, args, "--format=float32le")
	assert.Contains(t, args, "--rate=48000")
	assert.Contains(t, args, "--channels=2")
	assert.Equal(t, []string{"-d", MonitorDevice}, args[len(args)-2:])

	assert.Contains(t, pulseArgs("", 1, true), "--channels=1")
}

func TestSourceDownmixesInterleavedFrames(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("pulse capture is linux only")
	}
	t.Parallel()

	for _, channels := range []int{1, 2, 6} {
		s := NewMicrophone(Config{LookPath: found, Command: helperCommand, Channels: channels})
		out := make(chan core.AudioChunk, 8)
		require.NoError(t, s.Start(context.Background(), out))

		select {
		case chunk := <-out:
			require.Len(t, chunk.Samples, media.FrameSamples, "channels=%d", channels)
			for _, v := range chunk.Samples {
				assert.InDelta(t, 0.5, v, 1e-6, "channels=%d", channels)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("no chunk from %d-channel capture", channels)
		}
		require.NoError(t, s.Stop())
	}
}
