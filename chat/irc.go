package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// ErrCredentialsRequired is reported when a writable client is requested without a bot login.
var ErrCredentialsRequired = errors.New("chat credentials required for non read-only client")

// ErrConnectionLost is reported once when an established chat connection drops.
// The client does not reconnect; a new join opens a new connection.
var ErrConnectionLost = errors.New("chat connection lost")

// IRCSource opens chat connections over IRC using go-twitch-irc.
type IRCSource struct {
	// Address overrides the IRC endpoint; empty keeps the library default.
	Address string
	TLS     bool
	// Username and Token are only used for non read-only clients.
	Username string
	Token    string
}

// NewClient implements Source.
func (s *IRCSource) NewClient(channel string, opts Options) Client {
	c := &ircClient{
		channel: channel,
		opts:    opts,
		log:     slog.Default().With(slog.String("component", "chat_irc"), slog.String("channel", channel)),
	}
	switch {
	case opts.ReadOnly:
		c.irc = twitch.NewAnonymousClient()
	case s.Username != "" && s.Token != "":
		c.irc = twitch.NewClient(s.Username, s.Token)
	default:
		c.credErr = ErrCredentialsRequired
		return c
	}
	if s.Address != "" {
		c.irc.IrcAddress = s.Address
	}
	c.irc.TLS = s.TLS
	return c
}

type ircClient struct {
	channel string
	opts    Options
	irc     *twitch.Client
	credErr error
	log     *slog.Logger

	mu        sync.Mutex
	stopped   bool
	connects  int
	onReady   func()
	onMessage func(Message)
	onError   func(error)
}

func (c *ircClient) OnReady(fn func()) {
	c.mu.Lock()
	c.onReady = fn
	c.mu.Unlock()
}

func (c *ircClient) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *ircClient) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *ircClient) Connect() {
	if c.credErr != nil {
		go c.emitError(c.credErr)
		return
	}

	c.irc.OnConnect(func() {
		if c.isStopped() {
			// Disconnect raced the handshake; drop the late connection.
			go func() { _ = c.irc.Disconnect() }()
			return
		}
		c.mu.Lock()
		c.connects++
		n, h := c.connects, c.onReady
		c.mu.Unlock()
		if n > 1 {
			// The library reconnected after a drop. Every later connect is cut too,
			// since the parser may race one more reconnect past the disconnect.
			_ = c.irc.Disconnect()
			if n == 2 {
				c.log.Warn("chat connection dropped; not reconnecting")
				c.emitError(ErrConnectionLost)
			}
			return
		}
		c.log.Info("connected to chat")
		if h != nil {
			h()
		}
	})
	c.irc.OnPrivateMessage(func(pm twitch.PrivateMessage) {
		c.mu.Lock()
		h, stopped := c.onMessage, c.stopped
		c.mu.Unlock()
		if stopped || h == nil {
			return
		}
		msg := toMessage(pm)
		if c.opts.Logger {
			c.log.Debug("chat message", slog.String("sender", msg.Sender), slog.String("id", msg.ID))
		}
		h(msg)
	})
	c.irc.OnNoticeMessage(func(n twitch.NoticeMessage) {
		if err := noticeError(n); err != nil {
			c.emitError(err)
		}
	})

	c.irc.Join(c.channel)
	go func() {
		err := c.irc.Connect()
		if c.isStopped() || err == nil || errors.Is(err, twitch.ErrClientDisconnected) {
			c.log.Debug("chat connection closed", slog.Any("err", err))
			return
		}
		c.log.Warn("chat connection failed", slog.Any("err", err))
		c.emitError(fmt.Errorf("chat connection to %s failed: %w", c.channel, err))
	}()
}

// Disconnect is idempotent. A connection that is still handshaking is closed by the
// OnConnect hook once it completes.
func (c *ircClient) Disconnect() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if c.irc == nil {
		return nil
	}
	if err := c.irc.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
		return fmt.Errorf("disconnect %s: %w", c.channel, err)
	}
	c.log.Info("disconnected from chat")
	return nil
}

func (c *ircClient) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *ircClient) emitError(err error) {
	c.mu.Lock()
	h, stopped := c.onError, c.stopped
	c.mu.Unlock()
	if stopped || h == nil {
		return
	}
	h(err)
}

func toMessage(pm twitch.PrivateMessage) Message {
	sender := pm.User.DisplayName
	if sender == "" {
		sender = pm.User.Name
	}
	return Message{
		Channel: pm.Channel,
		ID:      pm.ID,
		Sender:  sender,
		Content: pm.Message,
		Time:    pm.Time,
	}
}

// noticeError converts server notices (rate limits, suspended or unknown channels) into error events.
func noticeError(n twitch.NoticeMessage) error {
	switch {
	case n.Message != "":
		return errors.New(n.Message)
	case n.MsgID != "":
		return errors.New(n.MsgID)
	default:
		return nil
	}
}
