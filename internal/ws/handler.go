package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/auth"
	"github.com/peteat123/Peteat-sub001/internal/delivery"
	"github.com/peteat123/Peteat-sub001/internal/domain"
	"github.com/peteat123/Peteat-sub001/internal/metrics"
	"github.com/peteat123/Peteat-sub001/internal/presence"
	"github.com/peteat123/Peteat-sub001/internal/protocol"
)

const userKey = "ws_user_id"

type Router interface {
	Send(ctx context.Context, senderID string, req delivery.SendRequest) (*domain.Message, error)
	MarkRead(ctx context.Context, userID string, ids []string) ([]string, error)
}

// PresenceMirror receives online/offline transitions. Optional.
type PresenceMirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

type Options struct {
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	EventsPerSecond float64
	EventBurst      int
}

func (o *Options) defaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 10
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 20
	}
}

type Handler struct {
	router   Router
	registry presence.Registry
	mirror   PresenceMirror
	verifier auth.Verifier
	opts     Options
	log      *zap.Logger

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	closing bool
	active  sync.WaitGroup
}

func NewHandler(router Router, reg presence.Registry, mirror PresenceMirror, v auth.Verifier, opts Options, log *zap.Logger) *Handler {
	opts.defaults()
	return &Handler{
		router:   router,
		registry: reg,
		mirror:   mirror,
		verifier: v,
		opts:     opts,
		log:      log,
		conns:    make(map[*Conn]struct{}),
	}
}

// Shutdown closes every open connection with 1001 and waits for their
// loops to exit. New connections are refused once it has been called.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for c := range h.conns {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Info("closing websocket connections", zap.Int("count", n))

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) track(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[c] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *Handler) untrack(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	h.active.Done()
}

// Upgrade authenticates the handshake. The token comes from ?token= or the
// Authorization header; nothing is registered for rejected clients.
func (h *Handler) Upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.Query("token")
		if tok == "" {
			var err error
			if tok, err = auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization)); err != nil {
				return rejectHandshake(c, err)
			}
		}
		id, err := h.verifier.Verify(tok)
		if err != nil {
			return rejectHandshake(c, err)
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(userKey, id.UserID)
		return c.Next()
	}
}

// Serve must be mounted after Upgrade.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals(userKey).(string)
		if userID == "" {
			_ = c.Close()
			return
		}
		h.run(c, userID)
	})
}

func (h *Handler) run(sock socket, userID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newConn(sock, userID, h.opts)
	if !h.track(c) {
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(h.opts.WriteDeadline))
		_ = sock.Close()
		return
	}
	defer h.untrack(c)
	h.attach(ctx, c)

	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump(h.opts)
	}()

	h.readLoop(ctx, c)
	h.detach(ctx, c)
	<-written
}

func (h *Handler) attach(ctx context.Context, c *Conn) {
	prev := h.registry.Register(c.userID, c)
	metrics.ActiveConnections.Inc()
	if prev != nil {
		metrics.SupersededSessions.Inc()
		prev.Send(protocol.MustEncode(protocol.TypeSessionReplaced, "", nil))
		if pc, ok := prev.(*Conn); ok {
			pc.Close(CloseSessionReplaced, "session replaced")
		}
		h.log.Info("session superseded", zap.String("user_id", c.userID), zap.String("old_conn", prev.ID()), zap.String("conn", c.id))
	}
	if h.mirror != nil {
		if err := h.mirror.Online(ctx, c.userID); err != nil {
			h.log.Warn("presence mirror online failed", zap.String("user_id", c.userID), zap.Error(err))
		}
	}
	h.log.Debug("client connected", zap.String("user_id", c.userID), zap.String("conn", c.id))
}

// detach clears the registry entry only if it still points at c.
func (h *Handler) detach(ctx context.Context, c *Conn) {
	c.Close(websocket.CloseNormalClosure, "")
	metrics.ActiveConnections.Dec()
	if !h.registry.Unregister(c.userID, c) {
		h.log.Debug("stale disconnect ignored", zap.String("user_id", c.userID), zap.String("conn", c.id))
		return
	}
	if h.mirror != nil {
		if err := h.mirror.Offline(ctx, c.userID); err != nil {
			h.log.Warn("presence mirror offline failed", zap.String("user_id", c.userID), zap.Error(err))
		}
	}
	h.log.Debug("client disconnected", zap.String("user_id", c.userID), zap.String("conn", c.id))
}

func (h *Handler) readLoop(ctx context.Context, c *Conn) {
	pongWait := h.opts.PingInterval + h.opts.WriteDeadline
	c.sock.SetReadLimit(h.opts.MaxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.closed() {
				h.log.Debug("read failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		h.handle(ctx, c, data)
	}
}

func rejectHandshake(c *fiber.Ctx, err error) error {
	switch apperr.CodeOf(err) {
	case apperr.CodeUnauthenticated, apperr.CodeForbidden:
	default:
		err = apperr.Unauthenticated("invalid token", err)
	}
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
		"error": apperr.MessageOf(err),
		"code":  apperr.CodeOf(err),
	})
}
