package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BaherKh1/KickChatViewer/chat"
	"github.com/BaherKh1/KickChatViewer/emotes"
	"github.com/BaherKh1/KickChatViewer/telemetry"
)

// ErrEmptyChannel is returned by Join for an empty channel name.
var ErrEmptyChannel = errors.New("channel name empty")

// Sink is the downstream end of a session. Send must not block for long; it is called
// while the manager lock is held so that delivery order matches session order.
type Sink interface {
	Send(v any) error
	ID() string
}

// EmoteFetcher builds the emote mapping for a channel. It must always return a mapping.
type EmoteFetcher interface {
	Fetch(ctx context.Context, channel string) emotes.Mapping
}

// Options configure a Manager.
type Options struct {
	// ChatLogger is passed to upstream clients as chat.Options.Logger.
	ChatLogger bool
	// ReleaseOnDisconnect tears the session down when its downstream goes away.
	ReleaseOnDisconnect bool
}

// Session pairs one upstream chat connection with the downstream that asked for it.
type Session struct {
	Channel    string
	Generation uint64

	sink     Sink
	upstream chat.Client
	cancel   context.CancelFunc
	done     chan struct{}
	since    time.Time
	ready    bool
}

// Done is closed once the session finished fetching emotes and connecting upstream
// (or gave up because it was superseded).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SessionInfo is a point-in-time view of the active session.
type SessionInfo struct {
	Channel      string    `json:"channel"`
	Generation   uint64    `json:"generation"`
	Downstream   string    `json:"downstream"`
	UpstreamOpen bool      `json:"upstream_open"`
	Ready        bool      `json:"ready"`
	Since        time.Time `json:"since"`
}

// Manager owns the single active session of the relay process.
type Manager struct {
	source  chat.Source
	fetcher EmoteFetcher
	opts    Options

	mu         sync.Mutex
	generation uint64
	active     *Session
}

// NewManager creates a Manager with no active session.
func NewManager(source chat.Source, fetcher EmoteFetcher, opts Options) *Manager {
	return &Manager{source: source, fetcher: fetcher, opts: opts}
}

// Join replaces the active session with a new one for channel. The previous session is torn
// down before Join returns; emote refresh and upstream connect continue in the background.
// Any non-empty channel name is accepted as is.
func (m *Manager) Join(ctx context.Context, sink Sink, channel string) (*Session, error) {
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	telemetry.Inc(telemetry.JoinsTotal)

	sessCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.generation++
	s := &Session{
		Channel:    channel,
		Generation: m.generation,
		sink:       sink,
		cancel:     cancel,
		done:       make(chan struct{}),
		since:      time.Now().UTC(),
	}
	if prev := m.active; prev != nil {
		m.teardownLocked(prev, "superseded")
	}
	m.active = s
	m.mu.Unlock()

	telemetry.LoggerWithCorr(ctx).Info("joining channel",
		slog.String("component", "relay"),
		slog.String("channel", channel),
		slog.Uint64("generation", s.Generation))

	go m.establish(sessCtx, s)
	return s, nil
}

func (m *Manager) establish(ctx context.Context, s *Session) {
	defer close(s.done)
	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.join", telemetry.ChannelAttr(s.Channel), telemetry.GenerationAttr(s.Generation))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "relay"),
		slog.String("channel", s.Channel),
		slog.Uint64("generation", s.Generation))

	mapping := m.fetcher.Fetch(ctx, s.Channel)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != s {
		telemetry.Inc(telemetry.StaleResultsDiscarded)
		log.Info("session superseded during emote fetch; discarding result")
		return
	}
	if err := s.sink.Send(newEmoteData(mapping)); err != nil {
		log.Warn("failed to send emote data", slog.Any("err", err))
	}

	client := m.source.NewClient(s.Channel, chat.Options{Logger: m.opts.ChatLogger, ReadOnly: true})
	client.OnReady(func() { m.markReady(s, log) })
	client.OnMessage(func(msg chat.Message) {
		if m.deliver(s, newChatMessage(msg.Sender, msg.Content)) {
			telemetry.Inc(telemetry.ChatMessagesForwarded)
		}
	})
	client.OnError(func(err error) {
		telemetry.Inc(telemetry.UpstreamErrors)
		log.Warn("upstream chat error", slog.Any("err", err))
		m.deliver(s, newErrorEvent(err))
	})
	s.upstream = client
	client.Connect()
	telemetry.SetUpstreamActive(true)
	telemetry.SetSpanSuccess(span)
}

// deliver sends v downstream if s is still the active session.
func (m *Manager) deliver(s *Session, v any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != s {
		telemetry.Inc(telemetry.StaleResultsDiscarded)
		return false
	}
	if err := s.sink.Send(v); err != nil {
		slog.Debug("downstream send failed", slog.String("downstream", s.sink.ID()), slog.Any("err", err))
		return false
	}
	return true
}

func (m *Manager) markReady(s *Session, log *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != s {
		return
	}
	s.ready = true
	log.Info("connected to channel chat")
}

// teardownLocked cancels the session's emote fetch and releases its upstream.
// Disconnect failures, panics included, are logged and swallowed.
func (m *Manager) teardownLocked(s *Session, reason string) {
	s.cancel()
	up := s.upstream
	s.upstream = nil
	if up == nil {
		return
	}
	log := slog.With(slog.String("component", "relay"), slog.String("channel", s.Channel),
		slog.Uint64("generation", s.Generation), slog.String("reason", reason))
	if err := safeDisconnect(up); err != nil {
		telemetry.Inc(telemetry.TeardownFailures)
		log.Warn("error disconnecting previous chat client", slog.Any("err", err))
	} else {
		log.Info("released upstream chat client")
	}
	telemetry.SetUpstreamActive(false)
}

func safeDisconnect(c chat.Client) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("disconnect panicked: %v", r)
		}
	}()
	return c.Disconnect()
}

// Release tears down the active session if it belongs to sink. It is a no-op when the
// manager was configured to keep upstreams alive after downstream disconnects.
func (m *Manager) Release(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.sink != sink {
		return
	}
	if !m.opts.ReleaseOnDisconnect {
		slog.Info("downstream gone; keeping upstream open", slog.String("channel", m.active.Channel))
		return
	}
	m.teardownLocked(m.active, "downstream disconnected")
	m.active = nil
}

// Close tears down the active session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.teardownLocked(m.active, "shutdown")
		m.active = nil
	}
}

// Active returns a snapshot of the active session.
func (m *Manager) Active() (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.active
	if s == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		Channel:      s.Channel,
		Generation:   s.Generation,
		Downstream:   s.sink.ID(),
		UpstreamOpen: s.upstream != nil,
		Ready:        s.ready,
		Since:        s.since,
	}, true
}
