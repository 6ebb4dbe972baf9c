package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaherKh1/KickChatViewer/chat"
	"github.com/BaherKh1/KickChatViewer/emotes"
)

// fakeSource hands out fakeClients and tracks how many are connected at once.
type fakeSource struct {
	mu       sync.Mutex
	clients  []*fakeClient
	live     int
	maxLive  int
	overlap  bool // a client connected while another was still live
	lastOpts chat.Options
	channels []string
}

func (s *fakeSource) NewClient(channel string, opts chat.Options) chat.Client {
	c := &fakeClient{channel: channel, src: s}
	s.mu.Lock()
	s.clients = append(s.clients, c)
	s.channels = append(s.channels, channel)
	s.lastOpts = opts
	s.mu.Unlock()
	return c
}

func (s *fakeSource) created() []*fakeClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeClient(nil), s.clients...)
}

func (s *fakeSource) stats() (live, maxLive int, overlap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live, s.maxLive, s.overlap
}

type fakeClient struct {
	channel string
	src     *fakeSource

	mu            sync.Mutex
	ready         func()
	message       func(chat.Message)
	errh          func(error)
	connected     bool
	disconnects   int
	disconnectErr error
	panicOnClose  bool
}

func (c *fakeClient) OnReady(h func()) {
	c.mu.Lock()
	c.ready = h
	c.mu.Unlock()
}

func (c *fakeClient) OnMessage(h func(chat.Message)) {
	c.mu.Lock()
	c.message = h
	c.mu.Unlock()
}

func (c *fakeClient) OnError(h func(error)) {
	c.mu.Lock()
	c.errh = h
	c.mu.Unlock()
}

func (c *fakeClient) Connect() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.src.mu.Lock()
	if c.src.live > 0 {
		c.src.overlap = true
	}
	c.src.live++
	if c.src.live > c.src.maxLive {
		c.src.maxLive = c.src.live
	}
	c.src.mu.Unlock()
}

func (c *fakeClient) Disconnect() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.disconnects++
	errOut, panicky := c.disconnectErr, c.panicOnClose
	c.mu.Unlock()

	if wasConnected {
		c.src.mu.Lock()
		c.src.live--
		c.src.mu.Unlock()
	}
	if panicky {
		panic("socket already closed")
	}
	return errOut
}

func (c *fakeClient) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// emit helpers call handlers from the test goroutine, like a library read loop would.
func (c *fakeClient) emitMessage(sender, content string) {
	c.mu.Lock()
	h := c.message
	c.mu.Unlock()
	if h != nil {
		h(chat.Message{Channel: c.channel, Sender: sender, Content: content})
	}
}

func (c *fakeClient) emitError(msg string) {
	c.mu.Lock()
	h := c.errh
	c.mu.Unlock()
	if h != nil {
		h(errors.New(msg))
	}
}

func (c *fakeClient) emitReady() {
	c.mu.Lock()
	h := c.ready
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

// fakeFetcher returns canned mappings. A gated channel blocks until its gate is closed,
// then returns its mapping even if ctx was cancelled.
type fakeFetcher struct {
	mu       sync.Mutex
	mappings map[string]emotes.Mapping
	gates    map[string]chan struct{}
	calls    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{mappings: map[string]emotes.Mapping{}, gates: map[string]chan struct{}{}}
}

func (f *fakeFetcher) set(channel string, m emotes.Mapping) {
	f.mu.Lock()
	f.mappings[channel] = m
	f.mu.Unlock()
}

func (f *fakeFetcher) gate(channel string) chan struct{} {
	g := make(chan struct{})
	f.mu.Lock()
	f.gates[channel] = g
	f.mu.Unlock()
	return g
}

func (f *fakeFetcher) Fetch(ctx context.Context, channel string) emotes.Mapping {
	f.mu.Lock()
	f.calls = append(f.calls, channel)
	g := f.gates[channel]
	m := f.mappings[channel]
	f.mu.Unlock()
	if g != nil {
		<-g
	}
	if m == nil {
		return emotes.Mapping{}
	}
	return m
}

type fakeSink struct {
	id string

	mu   sync.Mutex
	sent []any
	err  error
}

func (s *fakeSink) ID() string { return s.id }

func (s *fakeSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *fakeSink) messages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.sent...)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %q (gen %d) did not finish establishing", s.Channel, s.Generation)
	}
}

func mustJoin(t *testing.T, m *Manager, sink Sink, channel string) *Session {
	t.Helper()
	s, err := m.Join(context.Background(), sink, channel)
	if err != nil {
		t.Fatalf("Join(%q) error = %v", channel, err)
	}
	return s
}
