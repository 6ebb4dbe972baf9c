package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaherKh1/KickChatViewer/emotes"
)

// Message types from the UI to the relay
const (
	TypeJoinChannel = "joinChannel"
)

// Message types from the relay to the UI
const (
	TypeEmoteData   = "emoteData"
	TypeChatMessage = "chatMessage"
	TypeError       = "error"
)

// ErrMalformed wraps every inbound decoding failure.
var ErrMalformed = errors.New("malformed inbound message")

// Inbound is a decoded UI request. Only joinChannel is recognized; other types decode
// successfully and are ignored by the caller.
type Inbound struct {
	Type        string `json:"type"`
	ChannelName string `json:"channelName"`
}

// EmoteDataMessage carries the emote mapping for the joined channel.
type EmoteDataMessage struct {
	Type   string         `json:"type"`
	Emotes emotes.Mapping `json:"emotes"`
}

// ChatMessageEvent is one forwarded chat line.
type ChatMessageEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// ErrorEvent reports a non-fatal upstream error.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newEmoteData(m emotes.Mapping) EmoteDataMessage {
	if m == nil {
		m = emotes.Mapping{}
	}
	return EmoteDataMessage{Type: TypeEmoteData, Emotes: m}
}

func newChatMessage(sender, content string) ChatMessageEvent {
	return ChatMessageEvent{Type: TypeChatMessage, Sender: sender, Content: content}
}

func newErrorEvent(err error) ErrorEvent {
	msg := "Unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return ErrorEvent{Type: TypeError, Message: msg}
}

// DecodeInbound parses one UI payload. Any failure is returned wrapped in ErrMalformed so the
// connection can log it and keep reading.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return in, nil
}
