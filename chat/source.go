package chat

import "time"

// Message is a single chat line received from the upstream platform.
type Message struct {
	Channel string
	ID      string
	Sender  string
	Content string
	Time    time.Time
}

// Options mirror the knobs the relay passes when opening a channel.
type Options struct {
	// Logger enables lifecycle and per-message debug logging.
	Logger bool
	// ReadOnly disables every authenticated capability (anonymous login).
	ReadOnly bool
}

// Client is one upstream connection scoped to a single channel.
//
// Handlers must be registered before Connect. Connect returns immediately and
// never invokes handlers from the calling goroutine. After Disconnect no
// handler fires again.
type Client interface {
	OnReady(func())
	OnMessage(func(Message))
	OnError(func(error))
	Connect()
	Disconnect() error
}

// Source creates upstream clients.
type Source interface {
	NewClient(channel string, opts Options) Client
}
