package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/callpilot/internal/config"
)

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	yml := `
server:
  listen_addr: ":8088"
  log_level: debug
live:
  api_key: test-key
  voice: Puck
audio:
  video_frame_interval: 2s
queue:
  cooldown: 5s
telephony:
  base_url: https://gateway.example.com
  organization: acme
  username: ops
  password: secret
`
	cfg, err := config.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8088" {
		t.Errorf("listen_addr = %q; want :8088", cfg.Server.ListenAddr)
	}
	if cfg.Live.Voice != "Puck" {
		t.Errorf("voice = %q; want Puck", cfg.Live.Voice)
	}
	if cfg.Queue.Cooldown != 5*time.Second {
		t.Errorf("cooldown = %v; want 5s", cfg.Queue.Cooldown)
	}
	// Unset fields keep their defaults.
	if cfg.Audio.CaptureSampleRate != 16000 {
		t.Errorf("capture sample rate = %d; want default 16000", cfg.Audio.CaptureSampleRate)
	}
	if cfg.Telephony.PollInterval != 3*time.Second {
		t.Errorf("poll interval = %v; want default 3s", cfg.Telephony.PollInterval)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yml := `
server:
  listen_addr: ":8088"
unknown_section:
  foo: bar
`
	if _, err := config.LoadFromReader(strings.NewReader(yml)); err == nil {
		t.Fatal("unknown top-level field should be rejected")
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Queue.Cooldown != 2*time.Second {
		t.Errorf("cooldown = %v; want default 2s", cfg.Queue.Cooldown)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "chatty"
	cfg.Audio.CaptureSampleRate = 0
	cfg.Queue.Cooldown = -time.Second

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate should fail")
	}
	for _, want := range []string{"log_level", "capture_sample_rate", "cooldown"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestValidate_TelephonyRequiresCredentials(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Telephony.BaseURL = "https://gateway.example.com"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("telephony without credentials should fail validation")
	}
	if !strings.Contains(err.Error(), "organization") || !strings.Contains(err.Error(), "username") {
		t.Errorf("error should name the missing credentials: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/callpilot.yaml"); err == nil {
		t.Fatal("Load of a missing file should fail")
	}
}
