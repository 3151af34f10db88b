package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testClientID     = "abcdefghij0123456789abcdefghij"
	testClientSecret = "0123456789abcdefghij0123456789"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TWITCH_CLIENT_ID", testClientID)
	t.Setenv("TWITCH_CLIENT_SECRET", testClientSecret)
	t.Setenv("CHANNELS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TWITCH_BROADCASTER_ID", "123456")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/42/abc_DEF-123")
	t.Setenv("DISCORD_WEBHOOK_PROFILE_NAME", "")
	t.Setenv("PREVENT_WEBHOOK_ON_FIRST_LOAD", "")
	t.Setenv("SECONDS_BETWEEN_RUNS", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("HTTP_ADDR", "")
}

func TestLoadSingleChannelFromEnv(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(cfg.Channels))
	}
	ch := cfg.Channels[0]
	if ch.BroadcasterID != "123456" {
		t.Errorf("broadcaster id = %q, want 123456", ch.BroadcasterID)
	}
	if !ch.SuppressFirstLoad() {
		t.Error("first-load suppression should default to true")
	}
	if ch.ProfileName() != DefaultWebhookProfileName {
		t.Errorf("profile name = %q, want default", ch.ProfileName())
	}
	if cfg.Interval != MinInterval {
		t.Errorf("interval = %v, want floor %v", cfg.Interval, MinInterval)
	}
}

func TestLoadRejectsMalformedCredentials(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		secret string
	}{
		{"empty id", "", testClientSecret},
		{"short id", "abc", testClientSecret},
		{"uppercase id", strings.ToUpper(testClientID), testClientSecret},
		{"short secret", testClientID, "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("TWITCH_CLIENT_ID", tt.id)
			t.Setenv("TWITCH_CLIENT_SECRET", tt.secret)
			if _, err := Load(); err == nil {
				t.Fatal("Load() succeeded with malformed credentials")
			}
		})
	}
}

func TestLoadRejectsMalformedChannel(t *testing.T) {
	tests := []struct {
		name        string
		broadcaster string
		webhook     string
	}{
		{"non-numeric broadcaster", "not-a-number", "https://discord.com/api/webhooks/42/abc"},
		{"wrong webhook host", "123456", "https://example.com/api/webhooks/42/abc"},
		{"http webhook", "123456", "http://discord.com/api/webhooks/42/abc"},
		{"missing webhook token", "123456", "https://discord.com/api/webhooks/42/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("TWITCH_BROADCASTER_ID", tt.broadcaster)
			t.Setenv("DISCORD_WEBHOOK_URL", tt.webhook)
			if _, err := Load(); err == nil {
				t.Fatal("Load() succeeded with malformed channel")
			}
		})
	}
}

func TestLoadChannelsFile(t *testing.T) {
	setBaseEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	content := `channels:
  - broadcaster_id: "111"
    webhook_url: https://discord.com/api/webhooks/1/token-one
    webhook_profile_name: First Channel
  - broadcaster_id: "222"
    webhook_url: https://discord.com/api/webhooks/2/token-two
    prevent_webhook_on_first_load: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHANNELS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(cfg.Channels))
	}
	if cfg.Channels[0].ProfileName() != "First Channel" {
		t.Errorf("profile name = %q", cfg.Channels[0].ProfileName())
	}
	if cfg.Channels[1].SuppressFirstLoad() {
		t.Error("second channel should have suppression disabled")
	}
}

func TestLoadChannelsFileRequiresAtLeastOne(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "channels.yaml")
	if err := os.WriteFile(path, []byte("channels: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHANNELS_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded with empty channel list")
	}
}

func TestIntervalFloor(t *testing.T) {
	tests := []struct {
		seconds string
		want    time.Duration
	}{
		{"1", MinInterval},
		{"10", MinInterval},
		{"60", 60 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.seconds, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("SECONDS_BETWEEN_RUNS", tt.seconds)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Interval != tt.want {
				t.Errorf("interval = %v, want %v", cfg.Interval, tt.want)
			}
		})
	}
}
