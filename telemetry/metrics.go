// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Emote fetch stages used as the "stage" label of EmoteFetchFailures.
const (
	StageGlobal        = "global"
	StageResolve       = "resolve"
	StageChannelEmotes = "channel"
)

var (
	once sync.Once

	// Counters
	JoinsTotal            prometheus.Counter
	ChatMessagesForwarded prometheus.Counter
	UpstreamErrors        prometheus.Counter
	TeardownFailures      prometheus.Counter
	MalformedInbound      prometheus.Counter
	StaleResultsDiscarded prometheus.Counter
	EmoteFetchFailures    *prometheus.CounterVec

	// Histograms (seconds)
	EmoteFetchDuration prometheus.Observer

	// Gauges
	UpstreamActive        prometheus.Gauge // 1 while an upstream chat connection is held
	DownstreamConnections prometheus.Gauge
	EmoteBreakerState     prometheus.Gauge // 0 closed, 1 half-open, 2 open
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		JoinsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_joins_total", Help: "Number of joinChannel requests handled"})
		ChatMessagesForwarded = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_chat_messages_forwarded_total", Help: "Chat messages forwarded downstream"})
		UpstreamErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_upstream_errors_total", Help: "Error events reported by the upstream chat client"})
		TeardownFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_teardown_failures_total", Help: "Upstream disconnects that failed during teardown"})
		MalformedInbound = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_malformed_inbound_total", Help: "Inbound downstream payloads that could not be decoded"})
		StaleResultsDiscarded = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_stale_results_discarded_total", Help: "Emote results or events dropped because their session was superseded"})
		EmoteFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_emote_fetch_failures_total", Help: "Emote directory lookups that failed, by stage"}, []string{"stage"})
		EmoteFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_emote_fetch_duration_seconds", Help: "Full emote directory fetch duration seconds", Buckets: prometheus.DefBuckets})
		UpstreamActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_upstream_active", Help: "Upstream chat connection held=1 none=0"})
		DownstreamConnections = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_downstream_connections", Help: "Currently open downstream WebSocket connections"})
		EmoteBreakerState = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_emote_breaker_state", Help: "Emote directory circuit breaker state closed=0 half-open=1 open=2"})
	})
}

// Inc increments c if it has been initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// RecordEmoteFailure counts a failed emote lookup stage.
func RecordEmoteFailure(stage string) {
	if EmoteFetchFailures != nil {
		EmoteFetchFailures.WithLabelValues(stage).Inc()
	}
}

// SetUpstreamActive sets gauge to 1 if held else 0.
func SetUpstreamActive(held bool) {
	if UpstreamActive == nil {
		return
	}
	if held {
		UpstreamActive.Set(1)
	} else {
		UpstreamActive.Set(0)
	}
}

// AddDownstream adjusts the open downstream connection gauge by delta.
func AddDownstream(delta int) {
	if DownstreamConnections != nil {
		DownstreamConnections.Add(float64(delta))
	}
}

// SetEmoteBreakerState records the emote directory breaker state.
func SetEmoteBreakerState(state float64) {
	if EmoteBreakerState != nil {
		EmoteBreakerState.Set(state)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
