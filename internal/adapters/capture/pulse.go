// Package capture reads and plays raw PCM through the PulseAudio command
// line tools. Each Source owns one device stream; starting it twice without a
// Stop is an error.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

const (
	// MonitorDevice is the loopback of whatever the default sink plays.
	MonitorDevice = "@DEFAULT_MONITOR@"
	DefaultDevice = "@DEFAULT_SOURCE@"

	// DefaultChannels is what desktop sources and monitors deliver.
	DefaultChannels = 2
)

// CommandFunc builds the process the adapter reads from or writes to.
// Tests replace it to avoid a real audio server.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

type Config struct {
	Device string
	// Channels is the interleaved channel count requested from the source.
	// Frames are downmixed to mono by averaging.
	Channels  int
	ParecPath string
	PacatPath string
	Command   CommandFunc
	// LookPath resolves tool names; defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

func (c *Config) defaults() {
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.ParecPath == "" {
		c.ParecPath = "parec"
	}
	if c.PacatPath == "" {
		c.PacatPath = "pacat"
	}
	if c.Command == nil {
		c.Command = exec.CommandContext
	}
	if c.LookPath == nil {
		c.LookPath = exec.LookPath
	}
}

func pulseArgs(device string, channels int, playback bool) []string {
	args := []string{"--raw", "--format=float32le", "--rate=48000", fmt.Sprintf("--channels=%d", channels), "--latency-msec=20"}
	if device != "" {
		args = append(args, "-d", device)
	}
	if playback {
		args = append(args, "--stream-name=voicemedia")
	}
	return args
}

// Source captures interleaved f32 audio and hands it on as mono 960-sample
// chunks.
type Source struct {
	cfg  Config
	name string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSource(name string, cfg Config) *Source {
	cfg.defaults()
	return &Source{cfg: cfg, name: name}
}

// NewLoopback captures what the machine is playing.
func NewLoopback(cfg Config) *Source {
	if cfg.Device == "" {
		cfg.Device = MonitorDevice
	}
	return NewSource("loopback", cfg)
}

func NewMicrophone(cfg Config) *Source {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	return NewSource("mic", cfg)
}

func (s *Source) Available() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := s.cfg.LookPath(s.cfg.ParecPath)
	return err == nil
}

func (s *Source) Start(ctx context.Context, out chan<- core.AudioChunk) error {
	if !s.Available() {
		return fmt.Errorf("%s capture: %w", s.name, core.ErrUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return core.ErrCaptureRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := s.cfg.Command(ctx, s.cfg.ParecPath, pulseArgs(s.cfg.Device, s.cfg.Channels, false)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%s capture: %w", s.name, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s capture: %w", s.name, core.ErrUnavailable)
		}
		return fmt.Errorf("%s capture: %w", s.name, err)
	}

	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.pump(ctx, stdout, out)
		_ = cmd.Wait()
	}()
	log.Info().Str("module", "capture").Str("source", s.name).Str("device", s.cfg.Device).Msg("capture started")
	return nil
}

func (s *Source) pump(ctx context.Context, r io.Reader, out chan<- core.AudioChunk) {
	frameBytes := media.FrameSamples * s.cfg.Channels * 4
	br := bufio.NewReaderSize(r, frameBytes*4)
	buf := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.Warn().Str("module", "capture").Str("source", s.name).Err(err).Msg("capture read failed")
			}
			return
		}
		chunk := core.AudioChunk{Samples: media.DecodeInterleaved(buf, s.cfg.Channels, media.FormatF32LE), SampleRate: media.SampleRate}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		default:
			// consumer is behind; the chunk is lost rather than queued
		}
	}
}

// Stop ends the capture and waits for the reader to exit. It is safe to call
// when nothing is running.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	log.Info().Str("module", "capture").Str("source", s.name).Msg("capture stopped")
	return nil
}

// Sink plays mono f32 audio on the default output.
type Sink struct {
	cfg Config

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
}

func NewSink(cfg Config) *Sink {
	cfg.defaults()
	return &Sink{cfg: cfg}
}

func (s *Sink) Available() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := s.cfg.LookPath(s.cfg.PacatPath)
	return err == nil
}

func (s *Sink) Open() error {
	if !s.Available() {
		return fmt.Errorf("playback: %w", core.ErrUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := s.cfg.Command(ctx, s.cfg.PacatPath, append([]string{"--playback"}, pulseArgs(s.cfg.Device, 1, true)...)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("playback: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("playback: %w", err)
	}
	s.cmd, s.stdin, s.cancel = cmd, stdin, cancel
	return nil
}

func (s *Sink) Write(pcm []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return core.ErrClosed
	}
	_, err := s.stdin.Write(media.EncodeF32LE(pcm))
	return err
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	_ = s.stdin.Close()
	s.cancel()
	_ = s.cmd.Wait()
	s.cmd, s.stdin, s.cancel = nil, nil, nil
	return nil
}

var (
	_ core.AudioSource  = (*Source)(nil)
	_ core.PlaybackSink = (*Sink)(nil)
)
