package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/igun997/ai-live/internal/app"
	"github.com/igun997/ai-live/internal/audio"
	"github.com/igun997/ai-live/internal/capture"
	"github.com/igun997/ai-live/internal/config"
	"github.com/igun997/ai-live/internal/conn"
	"github.com/igun997/ai-live/internal/input"
	"github.com/igun997/ai-live/internal/logging"
	"github.com/igun997/ai-live/internal/metrics"
	"github.com/igun997/ai-live/internal/playback"
)

const probeTimeout = 5 * time.Second

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if inputMode != "" {
		cfg.Input.Mode = inputMode
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
}

func runLive(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	endpoint, err := conn.Endpoint(cfg.Server.URL, cfg.Server.Path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, logging.Component(log, "metrics")); err != nil {
				log.Error("metrics listener stopped", "error", err)
			}
		}()
	}

	deps, err := newDeps(ctx, cfg, endpoint, log, m)
	if err != nil {
		return err
	}

	log.Info("starting", "version", version, "endpoint", endpoint,
		"mode", cfg.Input.Mode, "microphone", audio.MicrophoneBackend, "speaker", audio.OutputBackend)

	p := tea.NewProgram(app.New(deps),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// newDeps builds the devices and controllers the UI drives.
func newDeps(ctx context.Context, cfg *config.Config, endpoint string, log *slog.Logger, m *metrics.Metrics) (app.Deps, error) {
	mode, err := input.ParseMode(cfg.Input.Mode)
	if err != nil {
		return app.Deps{}, err
	}
	token := &audio.Token{}

	enc := audio.NewFFmpegEncoder(cfg.Capture.FFmpeg)
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	if err := enc.Probe(probeCtx); err != nil {
		log.Warn("ffmpeg unavailable, utterances cannot be encoded", "error", err)
	}
	cancel()

	capt := capture.New(audio.NewMicrophone(), enc, capture.Options{
		MinDuration: cfg.Capture.MinDuration,
		Constraints: audio.Constraints{
			SampleRate:       cfg.Capture.SampleRate,
			Channels:         cfg.Capture.Channels,
			EchoCancellation: cfg.Capture.EchoCancellation,
			NoiseSuppression: cfg.Capture.NoiseSuppression,
		},
		Exclusive: cfg.Capture.Exclusive,
		Token:     token,
		Logger:    logging.Component(log, "capture"),
	})

	var fallback audio.FallbackPlayer
	if p := audio.NewFFplayPlayer(cfg.Playback.FFplay); p.Available() {
		fallback = p
	} else {
		log.Warn("ffplay not found, replies that cannot be decoded will be skipped")
	}
	outFormat := audio.Format{SampleRate: cfg.Playback.SampleRate, Channels: cfg.Playback.Channels}
	play := playback.New(audio.MP3Decoder{}, fallback, playback.Options{
		NewOutput: func() (audio.Output, error) { return audio.NewOutput(outFormat) },
		Token:     token,
		Logger:    logging.Component(log, "playback"),
	})

	connLog := logging.Component(log, "conn")
	dial := func(ctx context.Context) (app.Transport, error) {
		c, err := conn.Dial(ctx, conn.Config{
			URL:          endpoint,
			DialTimeout:  cfg.Server.DialTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			Logger:       connLog,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	return app.Deps{
		Dial:      dial,
		Capture:   capt,
		Playback:  play,
		Binder:    input.NewBinder(mode, cfg.Input.HoldReleaseGap),
		Keepalive: cfg.Server.Keepalive,
		Endpoint:  endpoint,
		Logger:    logging.Component(log, "app"),
		Metrics:   m,
	}, nil
}
