// Command KickChatViewer is the chat relay behind the desktop viewer.
// It:
//   - Loads configuration and initializes structured logging.
//   - Accepts the UI's WebSocket connection on a fixed local port.
//   - On joinChannel, refreshes the channel's emote mapping and relays the
//     channel's live chat, replacing any previous channel.
//   - Exposes /healthz, /readyz, /status, and /metrics next to the socket.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BaherKh1/KickChatViewer/chat"
	"github.com/BaherKh1/KickChatViewer/config"
	"github.com/BaherKh1/KickChatViewer/emotes"
	"github.com/BaherKh1/KickChatViewer/relay"
	"github.com/BaherKh1/KickChatViewer/server"
	"github.com/BaherKh1/KickChatViewer/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("kick-chat-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emoteClient := &emotes.Client{BaseURL: cfg.EmoteAPIBaseURL, Timeout: cfg.EmoteFetchTimeout}
	if cfg.EmoteAuthEnabled() {
		emoteClient.HTTPClient = emotes.AuthHTTPClient(ctx, cfg.EmoteAPIClientID, cfg.EmoteAPIClientSecret, cfg.EmoteAPITokenURL)
		slog.Info("emote directory auth enabled", slog.String("token_url", cfg.EmoteAPITokenURL))
	}
	if cfg.EmoteBreakerEnabled() {
		emoteClient.Breaker = emotes.NewBreaker(uint32(cfg.EmoteBreakerFailures), cfg.EmoteBreakerCooldown) //nolint:gosec // validated non-negative in config.Load
	}
	if cfg.EmoteAPIBaseURL == "" {
		slog.Warn("EMOTE_API_BASE_URL not set; channels will load without emotes")
	}

	source := &chat.IRCSource{Address: cfg.ChatIRCAddress, TLS: cfg.ChatIRCTLS}
	mgr := relay.NewManager(source, emoteClient, relay.Options{
		ChatLogger:          cfg.ChatLogger,
		ReleaseOnDisconnect: cfg.ReleaseOnDisconnect,
	})
	defer mgr.Close()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	if err := server.Start(ctx, cfg.Addr, server.NewMux(ctx, cfg, mgr)); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
		stop()
		mgr.Close()
		shutdown()
		os.Exit(1)
	}
	slog.Info("shutting down")
}
