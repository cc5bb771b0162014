// Package config loads ai-live settings from a YAML file, a .env file and
// AI_LIVE_* environment variables, in that order of increasing precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config path is given. It is optional.
const DefaultFile = "ai-live.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AI_LIVE_"

// Config is the full client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Input    InputConfig    `yaml:"input"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig locates the backend.
type ServerConfig struct {
	// URL is the backend origin; its scheme picks ws or wss.
	URL          string        `yaml:"url"`
	Path         string        `yaml:"path"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Keepalive is the ping interval; zero disables it.
	Keepalive time.Duration `yaml:"keepalive"`
}

// CaptureConfig controls microphone capture and encoding.
type CaptureConfig struct {
	MinDuration      time.Duration `yaml:"min_duration"`
	SampleRate       int           `yaml:"sample_rate"`
	Channels         int           `yaml:"channels"`
	EchoCancellation bool          `yaml:"echo_cancellation"`
	NoiseSuppression bool          `yaml:"noise_suppression"`
	// Exclusive refuses to record while a reply is playing.
	Exclusive bool   `yaml:"exclusive"`
	FFmpeg    string `yaml:"ffmpeg"`
}

// PlaybackConfig controls the speaker output.
type PlaybackConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	FFplay     string `yaml:"ffplay"`
}

// InputConfig controls the talk gesture.
type InputConfig struct {
	Mode           string        `yaml:"mode"`
	HoldReleaseGap time.Duration `yaml:"hold_release_gap"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the listener.
	Addr string `yaml:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			URL:          "http://localhost:8000",
			Path:         "/ws/audio",
			DialTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Keepalive:    20 * time.Second,
		},
		Capture: CaptureConfig{
			MinDuration:      600 * time.Millisecond,
			SampleRate:       16000,
			Channels:         1,
			EchoCancellation: true,
			NoiseSuppression: true,
			Exclusive:        true,
			FFmpeg:           "ffmpeg",
		},
		Playback: PlaybackConfig{
			SampleRate: 24000,
			Channels:   2,
			FFplay:     "ffplay",
		},
		Input: InputConfig{
			Mode:           "toggle",
			HoldReleaseGap: 700 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "ai-live.log",
		},
	}
}

// Load builds the configuration. An empty path reads DefaultFile if it
// exists; an explicit path must exist. A .env file in the working directory
// is loaded into the environment without overriding variables already set.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from AI_LIVE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVER_URL", &c.Server.URL)
	str("SERVER_PATH", &c.Server.Path)
	dur("SERVER_KEEPALIVE", &c.Server.Keepalive)
	dur("CAPTURE_MIN_DURATION", &c.Capture.MinDuration)
	boolean("CAPTURE_EXCLUSIVE", &c.Capture.Exclusive)
	str("FFMPEG", &c.Capture.FFmpeg)
	str("FFPLAY", &c.Playback.FFplay)
	str("INPUT_MODE", &c.Input.Mode)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	str("METRICS_ADDR", &c.Metrics.Addr)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Server.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("server.url: %w", err))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("server.url %q: missing host", c.Server.URL))
	default:
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "ws", "wss":
		default:
			errs = append(errs, fmt.Errorf("server.url %q: scheme must be http, https, ws or wss", c.Server.URL))
		}
	}
	if c.Server.Keepalive < 0 {
		errs = append(errs, errors.New("server.keepalive must not be negative"))
	}
	if c.Capture.MinDuration <= 0 {
		errs = append(errs, errors.New("capture.min_duration must be positive"))
	}
	if c.Capture.SampleRate <= 0 || c.Capture.Channels <= 0 {
		errs = append(errs, errors.New("capture.sample_rate and capture.channels must be positive"))
	}
	if c.Playback.SampleRate <= 0 || c.Playback.Channels <= 0 {
		errs = append(errs, errors.New("playback.sample_rate and playback.channels must be positive"))
	}
	switch strings.ToLower(c.Input.Mode) {
	case "toggle", "hold":
	default:
		errs = append(errs, fmt.Errorf("input.mode %q: want toggle or hold", c.Input.Mode))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
