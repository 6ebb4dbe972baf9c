package emotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/BaherKh1/KickChatViewer/telemetry"
)

// StatusError is returned for non-2xx directory responses.
type StatusError struct {
	Path   string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s: %s", e.Path, e.Status, e.Body)
}

// NewBreaker returns a circuit breaker for the directory API. It opens after failures
// consecutive failed requests and probes again after cooldown. While open, lookups fail
// immediately and Fetch degrades to fewer emotes instead of waiting on a dead API.
func NewBreaker(failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "emote-directory",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("emote directory circuit changed state",
				slog.String("component", "emotes"),
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			telemetry.SetEmoteBreakerState(float64(to))
		},
	})
}

// breakerSuccess decides which errors count against the directory. Caller cancellation
// and client errors (unknown channel) say nothing about the API's health.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}
