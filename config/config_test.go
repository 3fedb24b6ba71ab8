package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TWITCH_CHANNELS", "")
	t.Setenv("TWITCH_CHANNEL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RateLimitBurst != 18 {
		t.Errorf("RateLimitBurst = %d, want 18", cfg.RateLimitBurst)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("RateLimitWindow = %v, want 30s", cfg.RateLimitWindow)
	}
	if cfg.MaxMessageLen != 450 {
		t.Errorf("MaxMessageLen = %d, want 450", cfg.MaxMessageLen)
	}
	if cfg.IRCAddr == "" {
		t.Errorf("expected default IRC addr, got empty")
	}
	if cfg.FuzzyThreshold != 0.85 {
		t.Errorf("FuzzyThreshold = %v, want 0.85", cfg.FuzzyThreshold)
	}
}

func TestLoadChannelList(t *testing.T) {
	t.Setenv("TWITCH_CHANNELS", "#Alpha, beta ,,#Gamma")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(cfg.TwitchChannels) != len(want) {
		t.Fatalf("channels = %v, want %v", cfg.TwitchChannels, want)
	}
	for i, ch := range want {
		if cfg.TwitchChannels[i] != ch {
			t.Errorf("channels[%d] = %q, want %q", i, cfg.TwitchChannels[i], ch)
		}
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	t.Setenv("FUZZY_THRESHOLD", "1.5")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for FUZZY_THRESHOLD > 1")
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}

	t.Setenv("TWITCH_OAUTH_TOKEN", "token-without-prefix")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error for token without oauth: prefix")
	}

	t.Setenv("TWITCH_CHANNEL", "")
	t.Setenv("TWITCH_CHANNELS", "")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}
