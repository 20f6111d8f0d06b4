package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/voicemedia/internal/adapters/capture"
	"github.com/dkeye/voicemedia/internal/adapters/ipc"
	"github.com/dkeye/voicemedia/internal/adapters/transport"
	"github.com/dkeye/voicemedia/internal/app/orch"
	"github.com/dkeye/voicemedia/internal/codec"
	"github.com/dkeye/voicemedia/internal/config"
	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Setup(config.LogConfig{Level: "info", Pretty: true})

	loader := config.NewLoader(config.FileName())
	cfg, err := loader.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Log)
	loader.Watch(func(next *config.Config) {
		logging.SetLevel(next.Log.Level)
	})

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("media engine stopped")
		os.Exit(1)
	}
	log.Info().Msg("media engine exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	dialer, err := transport.NewDialer(transport.Config{
		ALPN:               cfg.Transport.ALPN,
		ServerName:         cfg.Transport.ServerName,
		InsecureSkipVerify: cfg.Transport.InsecureSkipVerify,
		CertFingerprint:    cfg.Transport.CertFingerprint,
		HandshakeTimeout:   cfg.Transport.HandshakeTimeout,
		IdleTimeout:        cfg.Transport.IdleTimeout,
		KeepAlive:          cfg.Transport.KeepAlive,
	})
	if err != nil {
		return err
	}

	pulse := capture.Config{
		Channels:  cfg.Capture.Channels,
		ParecPath: cfg.Capture.ParecPath,
		PacatPath: cfg.Capture.PacatPath,
	}
	mic := pulse
	mic.Device = cfg.Capture.MicDevice
	monitor := pulse
	monitor.Device = cfg.Capture.MonitorDevice

	var playback core.PlaybackSink
	if cfg.Capture.Playback {
		playback = capture.NewSink(pulse)
	}

	codecs := codec.NewFactory(codec.Config{
		VoiceBitrate:  cfg.Media.VoiceBitrate,
		StreamBitrate: cfg.Media.StreamBitrate,
	})

	hub := ipc.NewHub()
	engine := orch.New(orch.Deps{
		Dialer:   dialer,
		Codecs:   codecs,
		Mic:      capture.NewMicrophone(mic),
		Loopback: capture.NewLoopback(monitor),
		Playback: playback,
		Events:   hub,
	}, orch.Options{
		CameraFPS:         cfg.Media.CameraFPS,
		ScreenFPS:         cfg.Media.ScreenFPS,
		CameraKbps:        cfg.Media.VideoBitrateKbps,
		ScreenKbps:        cfg.Media.ScreenBitrateKbps,
		VoiceBitrate:      cfg.Media.VoiceBitrate,
		StreamBitrate:     cfg.Media.StreamBitrate,
		MTU:               cfg.Transport.DatagramMTU,
		HandshakeTimeout:  cfg.Transport.HandshakeTimeout,
		SpeakingThreshold: cfg.Media.SpeakingThreshold,
	})
	log.Info().Str("module", "main").Str("capabilities", engine.Capabilities().String()).Msg("engine ready")

	srv := &http.Server{
		Addr:              cfg.IPC.Addr,
		Handler:           ipc.SetupRouter(ctx, cfg.IPC, ipc.NewController(engine, hub, cfg.IPC)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", cfg.IPC.Addr).Msg("ipc listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Str("module", "main").Msg("shutting down")
		if err := engine.Close(); err != nil {
			log.Error().Err(err).Msg("engine close")
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
