// Package config loads environment variables and provides a typed Config used across the relay.
// It applies defaults so the relay can be launched by the desktop shell with no environment at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultAddr is the fixed port the front end dials (ws://localhost:4000).
const DefaultAddr = ":4000"

type Config struct {
	// Downstream (UI) transport
	Addr           string
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	SendBuffer     int

	// JoinRate paces joinChannel requests per connection (per second); <= 0 disables pacing.
	JoinRate  float64
	JoinBurst int

	// Upstream chat
	ChatIRCAddress string
	ChatIRCTLS     bool
	ChatLogger     bool

	// Emote directory
	EmoteAPIBaseURL      string
	EmoteAPIClientID     string
	EmoteAPIClientSecret string
	EmoteAPITokenURL     string
	EmoteFetchTimeout    time.Duration
	// EmoteBreakerFailures consecutive failures open the circuit; 0 disables the breaker.
	EmoteBreakerFailures int
	EmoteBreakerCooldown time.Duration

	// Session lifecycle
	ReleaseOnDisconnect bool
}

// Load reads environment variables and applies defaults. Malformed values are reported
// as errors instead of being silently replaced.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Addr = os.Getenv("RELAY_ADDR")
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxMessageSize, err = envInt64("WS_MAX_MESSAGE_BYTES", 64*1024); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = envDuration("WS_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PingInterval, err = envDuration("WS_PING_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	sendBuf, err := envInt64("WS_SEND_BUFFER", 256)
	if err != nil {
		return nil, err
	}
	cfg.SendBuffer = int(sendBuf)
	if cfg.JoinRate, err = envFloat("WS_JOIN_RATE", 2); err != nil {
		return nil, err
	}
	joinBurst, err := envInt64("WS_JOIN_BURST", 5)
	if err != nil {
		return nil, err
	}
	cfg.JoinBurst = int(joinBurst)

	// Empty address keeps the library default (irc.chat.twitch.tv:443).
	cfg.ChatIRCAddress = os.Getenv("CHAT_IRC_ADDRESS")
	if cfg.ChatIRCTLS, err = envBool("CHAT_IRC_TLS", true); err != nil {
		return nil, err
	}
	if cfg.ChatLogger, err = envBool("CHAT_CLIENT_LOGGER", true); err != nil {
		return nil, err
	}

	cfg.EmoteAPIBaseURL = strings.TrimRight(os.Getenv("EMOTE_API_BASE_URL"), "/")
	cfg.EmoteAPIClientID = os.Getenv("EMOTE_API_CLIENT_ID")
	cfg.EmoteAPIClientSecret = os.Getenv("EMOTE_API_CLIENT_SECRET")
	cfg.EmoteAPITokenURL = os.Getenv("EMOTE_API_TOKEN_URL")
	if cfg.EmoteFetchTimeout, err = envDuration("EMOTE_FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	failures, err := envInt64("EMOTE_BREAKER_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	cfg.EmoteBreakerFailures = int(failures)
	if cfg.EmoteBreakerCooldown, err = envDuration("EMOTE_BREAKER_COOLDOWN", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.ReleaseOnDisconnect, err = envBool("RELAY_RELEASE_ON_DISCONNECT", true); err != nil {
		return nil, err
	}

	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("invalid WS_SEND_BUFFER: must be positive, got %d", cfg.SendBuffer)
	}
	if cfg.JoinBurst <= 0 {
		return nil, fmt.Errorf("invalid WS_JOIN_BURST: must be positive, got %d", cfg.JoinBurst)
	}
	if cfg.EmoteBreakerFailures < 0 {
		return nil, fmt.Errorf("invalid EMOTE_BREAKER_FAILURES: must not be negative, got %d", cfg.EmoteBreakerFailures)
	}
	if cfg.PingInterval <= 0 {
		return nil, fmt.Errorf("invalid WS_PING_INTERVAL: must be positive, got %s", cfg.PingInterval)
	}
	return cfg, nil
}

// EmoteBreakerEnabled reports whether emote directory requests go through a circuit breaker.
func (c *Config) EmoteBreakerEnabled() bool {
	return c.EmoteBreakerFailures > 0
}

// EmoteAuthEnabled reports whether client-credentials auth is configured for the emote API.
func (c *Config) EmoteAuthEnabled() bool {
	return c.EmoteAPIClientID != "" && c.EmoteAPIClientSecret != "" && c.EmoteAPITokenURL != ""
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s (duration): %q", key, v)
	}
	return d, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (number): %w", key, err)
	}
	return f, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (integer): %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s (bool): %w", key, err)
	}
	return b, nil
}
