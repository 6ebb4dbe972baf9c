package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BaherKh1/KickChatViewer/config"
	"github.com/BaherKh1/KickChatViewer/relay"
	"github.com/BaherKh1/KickChatViewer/telemetry"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsServer upgrades UI connections and feeds their requests to the relay manager.
type wsServer struct {
	ctx      context.Context
	cfg      *config.Config
	mgr      *relay.Manager
	upgrader websocket.Upgrader
}

func newWSServer(ctx context.Context, cfg *config.Config, mgr *relay.Manager, cors *corsConfig) *wsServer {
	return &wsServer{
		ctx: ctx,
		cfg: cfg,
		mgr: mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cors.checkOrigin,
		},
	}
}

// wsConn is one downstream connection. It implements relay.Sink: Send only enqueues,
// and a dedicated writer goroutine drains the queue.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
	// joins paces joinChannel requests; a UI flapping between channels waits its turn.
	joins *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *wsConn) ID() string { return c.id }

// Send encodes v and queues it for the writer. A full queue means the UI stopped
// reading; the connection is closed rather than blocking the relay.
func (c *wsConn) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		c.log.Warn("send buffer full, closing connection")
		c.closeLocked()
		return errSendBufferFull
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *wsConn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.cancel()
}

// HandleWebSocket upgrades the request and serves the connection until it closes.
func (s *wsServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/ws" {
		http.NotFound(w, r)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		telemetry.LoggerWithCorr(r.Context()).Warn("websocket upgrade failed", slog.Any("err", err), slog.String("component", "ws"))
		return
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(telemetry.WithCorrelation(s.ctx, id))
	c := &wsConn{
		id:     id,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		log:    telemetry.LoggerWithCorr(ctx).With(slog.String("component", "ws")),
		send:   make(chan []byte, s.cfg.SendBuffer),
		joins:  newJoinLimiter(s.cfg),
	}
	telemetry.AddDownstream(1)
	c.log.Info("ui connected", slog.String("remote", clientIP(r)))

	go s.writePump(c)
	s.readPump(c)
}

// readPump reads UI requests until the socket errors or the server shuts down.
func (s *wsServer) readPump(c *wsConn) {
	defer func() {
		s.mgr.Release(c)
		c.close()
		_ = c.ws.Close()
		telemetry.AddDownstream(-1)
		c.log.Info("ui disconnected")
	}()

	// Unblock ReadMessage on shutdown or when the connection was closed from the send side.
	go func() {
		<-c.ctx.Done()
		_ = c.ws.Close()
	}()

	pongWait := 2 * s.cfg.PingInterval
	c.ws.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", slog.Any("err", err))
			}
			return
		}
		// Any inbound frame proves the peer is alive.
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		s.handleMessage(c, data)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *wsServer) writePump(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write failed", slog.Any("err", err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one UI payload. Malformed and unknown messages are logged and
// ignored so a single bad frame never drops the connection.
func (s *wsServer) handleMessage(c *wsConn, data []byte) {
	in, err := relay.DecodeInbound(data)
	if err != nil {
		telemetry.Inc(telemetry.MalformedInbound)
		c.log.Warn("ignoring malformed message", slog.Any("err", err), slog.Int("bytes", len(data)))
		return
	}

	switch in.Type {
	case relay.TypeJoinChannel:
		if err := c.joins.Wait(c.ctx); err != nil {
			return
		}
		if _, err := s.mgr.Join(c.ctx, c, in.ChannelName); err != nil {
			c.log.Warn("join rejected", slog.Any("err", err))
		}
	default:
		c.log.Debug("ignoring unknown message type", slog.String("type", in.Type))
	}
}

func newJoinLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.JoinRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(cfg.JoinRate), cfg.JoinBurst)
}
