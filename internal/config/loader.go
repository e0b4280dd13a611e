package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownVoices lists the voice IDs offered by the Gemini Live backend.
// Used by [Validate] to warn about unrecognised voices.
var KnownVoices = []string{"Kore", "Puck", "Charon", "Zephyr", "Fenrir"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, overlaid on [Default], and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Live backend
	if cfg.Live.APIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		slog.Warn("live.api_key is empty and GEMINI_API_KEY is not set; session setup will fail")
	}
	if cfg.Live.Voice != "" && !slices.Contains(KnownVoices, cfg.Live.Voice) {
		slog.Warn("unknown voice — may be a typo or a newly released voice",
			"voice", cfg.Live.Voice,
			"known", KnownVoices,
		)
	}

	// Audio formats
	if cfg.Audio.CaptureSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture_sample_rate %d must be positive", cfg.Audio.CaptureSampleRate))
	}
	if cfg.Audio.CaptureFrameSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio.capture_frame_samples %d must be positive", cfg.Audio.CaptureFrameSamples))
	}
	if cfg.Audio.PlaybackSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.playback_sample_rate %d must be positive", cfg.Audio.PlaybackSampleRate))
	}
	if cfg.Audio.VideoFrameInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.video_frame_interval must not be negative"))
	}

	// Queue
	if cfg.Queue.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("queue.cooldown must not be negative"))
	}

	// Telephony gateway (optional)
	if cfg.Telephony.BaseURL != "" {
		if cfg.Telephony.Organization == "" {
			errs = append(errs, fmt.Errorf("telephony.organization is required when telephony.base_url is set"))
		}
		if cfg.Telephony.Username == "" {
			errs = append(errs, fmt.Errorf("telephony.username is required when telephony.base_url is set"))
		}
		if cfg.Telephony.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("telephony.poll_interval must be positive"))
		}
	}

	return errors.Join(errs...)
}
