package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"RELAY_ADDR", "WS_MAX_MESSAGE_BYTES", "WS_WRITE_TIMEOUT", "WS_PING_INTERVAL", "WS_SEND_BUFFER",
		"CHAT_IRC_ADDRESS", "CHAT_IRC_TLS", "CHAT_CLIENT_LOGGER", "EMOTE_API_BASE_URL", "EMOTE_FETCH_TIMEOUT",
		"RELAY_RELEASE_ON_DISCONNECT", "EMOTE_API_CLIENT_ID", "EMOTE_API_CLIENT_SECRET", "EMOTE_API_TOKEN_URL",
		"WS_JOIN_RATE", "WS_JOIN_BURST", "EMOTE_BREAKER_FAILURES", "EMOTE_BREAKER_COOLDOWN"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.MaxMessageSize != 64*1024 {
		t.Errorf("MaxMessageSize = %d, want 65536", cfg.MaxMessageSize)
	}
	if cfg.WriteTimeout != 10*time.Second || cfg.PingInterval != 30*time.Second {
		t.Errorf("unexpected ws timings: write=%s ping=%s", cfg.WriteTimeout, cfg.PingInterval)
	}
	if !cfg.ChatIRCTLS || !cfg.ChatLogger {
		t.Errorf("expected TLS and chat logger enabled by default")
	}
	if !cfg.ReleaseOnDisconnect {
		t.Errorf("expected ReleaseOnDisconnect default true")
	}
	if cfg.EmoteAuthEnabled() {
		t.Errorf("emote auth should be disabled without credentials")
	}
	if cfg.JoinRate != 2 || cfg.JoinBurst != 5 {
		t.Errorf("join pacing = %v/%d, want 2/5", cfg.JoinRate, cfg.JoinBurst)
	}
	if !cfg.EmoteBreakerEnabled() || cfg.EmoteBreakerFailures != 5 || cfg.EmoteBreakerCooldown != 30*time.Second {
		t.Errorf("breaker = %d/%s, want 5/30s", cfg.EmoteBreakerFailures, cfg.EmoteBreakerCooldown)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", "127.0.0.1:5000")
	t.Setenv("EMOTE_API_BASE_URL", "http://emotes.local/api/")
	t.Setenv("EMOTE_FETCH_TIMEOUT", "3s")
	t.Setenv("CHAT_IRC_TLS", "false")
	t.Setenv("RELAY_RELEASE_ON_DISCONNECT", "0")
	t.Setenv("EMOTE_API_CLIENT_ID", "id")
	t.Setenv("EMOTE_API_CLIENT_SECRET", "secret")
	t.Setenv("EMOTE_API_TOKEN_URL", "http://emotes.local/oauth/token")
	t.Setenv("WS_JOIN_RATE", "0.5")
	t.Setenv("EMOTE_BREAKER_FAILURES", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:5000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.EmoteAPIBaseURL != "http://emotes.local/api" {
		t.Errorf("EmoteAPIBaseURL = %q, want trailing slash trimmed", cfg.EmoteAPIBaseURL)
	}
	if cfg.EmoteFetchTimeout != 3*time.Second {
		t.Errorf("EmoteFetchTimeout = %s", cfg.EmoteFetchTimeout)
	}
	if cfg.ChatIRCTLS {
		t.Errorf("expected CHAT_IRC_TLS=false to disable TLS")
	}
	if cfg.ReleaseOnDisconnect {
		t.Errorf("expected RELAY_RELEASE_ON_DISCONNECT=0 to disable release")
	}
	if !cfg.EmoteAuthEnabled() {
		t.Errorf("expected emote auth enabled")
	}
	if cfg.JoinRate != 0.5 {
		t.Errorf("JoinRate = %v, want 0.5", cfg.JoinRate)
	}
	if cfg.EmoteBreakerEnabled() {
		t.Errorf("expected EMOTE_BREAKER_FAILURES=0 to disable the breaker")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WS_WRITE_TIMEOUT", "soon"},
		{"WS_PING_INTERVAL", "0s"},
		{"WS_SEND_BUFFER", "-1"},
		{"WS_MAX_MESSAGE_BYTES", "lots"},
		{"CHAT_IRC_TLS", "maybe"},
		{"EMOTE_FETCH_TIMEOUT", "-5s"},
		{"WS_JOIN_RATE", "fast"},
		{"WS_JOIN_BURST", "0"},
		{"EMOTE_BREAKER_FAILURES", "-2"},
		{"EMOTE_BREAKER_COOLDOWN", "later"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
