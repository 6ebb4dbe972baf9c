// Package chat contains the upstream chat source used by the relay.
//
// The relay depends only on the Source and Client interfaces: a Client is
// created per channel, handlers for ready / message / error events are
// registered, and Connect starts the connection in the background.
// Disconnect releases it. IRCSource is the production implementation on top
// of github.com/gempir/go-twitch-irc/v4; tests substitute fakes.
//
// Read-only viewing uses the anonymous IRC login, so no credentials are needed
// and the connection cannot send messages.
package chat
