// Package config provides the configuration schema and loader for the
// CallPilot live calling engine.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Live      LiveConfig      `yaml:"live"`
	Audio     AudioConfig     `yaml:"audio"`
	Queue     QueueConfig     `yaml:"queue"`
	Telephony TelephonyConfig `yaml:"telephony"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics endpoint listens on
	// (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LiveConfig configures the speech-to-speech streaming backend.
type LiveConfig struct {
	// APIKey authenticates against the Gemini Live API. May also be
	// supplied via the GEMINI_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// Model overrides the default Gemini Live model.
	Model string `yaml:"model"`

	// BaseURL overrides the WebSocket endpoint. Leave empty for production.
	BaseURL string `yaml:"base_url"`

	// Voice selects the synthesized voice by ID (e.g. "Kore").
	Voice string `yaml:"voice"`
}

// AudioConfig holds the capture and playback formats.
type AudioConfig struct {
	// CaptureSampleRate is the microphone sample rate in Hz.
	CaptureSampleRate int `yaml:"capture_sample_rate"`

	// CaptureFrameSamples is the number of samples per microphone frame.
	CaptureFrameSamples int `yaml:"capture_frame_samples"`

	// PlaybackSampleRate is the model output sample rate in Hz.
	PlaybackSampleRate int `yaml:"playback_sample_rate"`

	// VideoFrameInterval is the camera still cadence during video calls.
	VideoFrameInterval time.Duration `yaml:"video_frame_interval"`
}

// QueueConfig tunes the call queue.
type QueueConfig struct {
	// Cooldown is the pause between a call ending and the next contact
	// being dialed automatically.
	Cooldown time.Duration `yaml:"cooldown"`
}

// TelephonyConfig configures the optional click-to-call gateway. When
// BaseURL is empty the gateway integration is disabled.
type TelephonyConfig struct {
	BaseURL      string `yaml:"base_url"`
	Organization string `yaml:"organization"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	APIKey       string `yaml:"api_key"`
	SenderID     string `yaml:"sender_id"`

	// PollInterval is the call status poll cadence.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns a Config populated with the built-in defaults. Loading a
// file overlays onto these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			LogLevel:   LogInfo,
		},
		Live: LiveConfig{
			Voice: "Kore",
		},
		Audio: AudioConfig{
			CaptureSampleRate:   16000,
			CaptureFrameSamples: 4096,
			PlaybackSampleRate:  24000,
			VideoFrameInterval:  time.Second,
		},
		Queue: QueueConfig{
			Cooldown: 2 * time.Second,
		},
		Telephony: TelephonyConfig{
			PollInterval: 3 * time.Second,
		},
	}
}
