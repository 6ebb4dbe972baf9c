// Package relay owns the single chat session of a relay process.
//
// A Manager holds at most one active Session. Join tears the previous session
// down (cancelling its emote fetch and disconnecting its upstream client)
// before the new one becomes active, then fetches emotes and connects the
// upstream asynchronously. Every session carries a generation number; emote
// results and upstream events are only delivered while their generation is
// current, so a superseded session never reaches the UI.
//
// Downstream connections implement Sink. Release is called when a downstream
// disconnects and tears its session down.
package relay
