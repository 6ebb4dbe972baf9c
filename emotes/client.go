package emotes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/BaherKh1/KickChatViewer/telemetry"
)

// Client fetches emote records from the directory API.
type Client struct {
	// BaseURL is the directory root, without trailing slash. Empty disables lookups.
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds one full Fetch; zero means no limit beyond the caller's context.
	Timeout time.Duration
	// Breaker, when set, guards every directory request. See NewBreaker.
	Breaker *gobreaker.CircuitBreaker
}

// AuthHTTPClient returns an HTTP client that attaches client-credentials bearer tokens.
// Tokens are fetched lazily and refreshed by the oauth2 package.
func AuthHTTPClient(ctx context.Context, clientID, clientSecret, tokenURL string) *http.Client {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return cc.Client(ctx)
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Fetch returns the merged emote mapping for channel (global only when channel is empty).
// It never fails: each unreachable stage is logged and contributes no entries.
func (c *Client) Fetch(ctx context.Context, channel string) Mapping {
	if c.BaseURL == "" {
		slog.Debug("emote directory not configured; sending empty emote set", slog.String("channel", channel))
		return Mapping{}
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	ctx, span := telemetry.StartSpan(ctx, "emotes", "emotes.fetch", telemetry.ChannelAttr(channel))
	defer span.End()

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "emotes"), slog.String("channel", channel))

	var global, scoped []Record
	telemetry.TimeFunc(telemetry.EmoteFetchDuration, func() {
		var err error
		global, err = c.GlobalEmotes(ctx)
		if err != nil {
			log.Warn("global emote fetch failed; continuing without global emotes", slog.Any("err", err))
			telemetry.RecordEmoteFailure(telemetry.StageGlobal)
			span.RecordError(err)
		}
		if channel == "" {
			return
		}
		id, err := c.ResolveChannelID(ctx, channel)
		if err != nil {
			log.Warn("channel id lookup failed; skipping channel emotes", slog.Any("err", err))
			telemetry.RecordEmoteFailure(telemetry.StageResolve)
			span.RecordError(err)
			return
		}
		scoped, err = c.ChannelEmotes(ctx, id)
		if err != nil {
			log.Warn("channel emote fetch failed; continuing without channel emotes", slog.String("channel_id", id), slog.Any("err", err))
			telemetry.RecordEmoteFailure(telemetry.StageChannelEmotes)
			span.RecordError(err)
		}
	})

	out := Merge(global, scoped)
	log.Info("emotes loaded", slog.Int("global", len(global)), slog.Int("channel", len(scoped)), slog.Int("merged", len(out)))
	return out
}

// GlobalEmotes lists the platform-wide emotes.
func (c *Client) GlobalEmotes(ctx context.Context) ([]Record, error) {
	return c.getRecords(ctx, "/emotes")
}

// ChannelEmotes lists the emotes scoped to a channel id.
func (c *Client) ChannelEmotes(ctx context.Context, channelID string) ([]Record, error) {
	if channelID == "" {
		return nil, fmt.Errorf("channel id empty")
	}
	return c.getRecords(ctx, "/channels/"+url.PathEscape(channelID)+"/emotes")
}

// ResolveChannelID resolves a channel name to its id. The id may be encoded as a JSON number or string.
func (c *Client) ResolveChannelID(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("channel name empty")
	}
	body, err := c.get(ctx, "/channels/"+url.PathEscape(name))
	if err != nil {
		return "", err
	}
	var ch struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &ch); err != nil {
		return "", fmt.Errorf("decode channel %s: %w", name, err)
	}
	id := normalizeID(ch.ID)
	if id == "" {
		return "", fmt.Errorf("channel %s: id missing", name)
	}
	return id, nil
}

func normalizeID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// getRecords accepts either a bare array or an object wrapping the array in "data".
// Elements are decoded one by one; an element of the wrong shape is skipped.
func (c *Client) getRecords(ctx context.Context, path string) ([]Record, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	var raw []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		raw = wrapped.Data
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	out := make([]Record, 0, len(raw))
	for i, elem := range raw {
		var rec Record
		if err := json.Unmarshal(elem, &rec); err != nil {
			slog.Debug("skipping undecodable emote record", slog.String("path", path), slog.Int("index", i), slog.Any("err", err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.Breaker == nil {
		return c.do(ctx, path)
	}
	out, err := c.Breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}
	return io.ReadAll(resp.Body)
}
