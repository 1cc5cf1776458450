package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/auth"
	"github.com/peteat123/Peteat-sub001/internal/delivery"
	"github.com/peteat123/Peteat-sub001/internal/domain"
	"github.com/peteat123/Peteat-sub001/internal/presence"
	"github.com/peteat123/Peteat-sub001/internal/protocol"
)

const secret = "test-secret"

type fakeRouter struct {
	mu    sync.Mutex
	sends []delivery.SendRequest
	err   error
}

func (r *fakeRouter) Send(_ context.Context, sender string, req delivery.SendRequest) (*domain.Message, error) {
	r.mu.Lock()
	r.sends = append(r.sends, req)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return domain.NewMessage(sender, req.RecipientID, req.Content, req.Attachments, time.Now())
}

func (r *fakeRouter) MarkRead(_ context.Context, _ string, ids []string) ([]string, error) {
	return ids, nil
}

type fakeMirror struct {
	mu     sync.Mutex
	events []string
}

func (m *fakeMirror) Online(_ context.Context, u string) error  { return m.add("online:" + u) }
func (m *fakeMirror) Offline(_ context.Context, u string) error { return m.add("offline:" + u) }

func (m *fakeMirror) add(e string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *fakeMirror) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// fakeSocket replays inbound frames and records outbound ones.
type fakeSocket struct {
	in     chan []byte
	mu     sync.Mutex
	out    [][]byte
	closes []int
	once   sync.Once
	gone   chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 16), gone: make(chan struct{})}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case b, ok := <-s.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, b, nil
	case <-s.gone:
		return 0, nil, io.EOF
	}
}

func (s *fakeSocket) WriteMessage(_ int, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, b)
	return nil
}

func (s *fakeSocket) WriteControl(mt int, data []byte, _ time.Time) error {
	if mt == websocket.CloseMessage && len(data) >= 2 {
		s.mu.Lock()
		s.closes = append(s.closes, int(data[0])<<8|int(data[1]))
		s.mu.Unlock()
	}
	return nil
}

func (s *fakeSocket) SetReadLimit(int64)                 {}
func (s *fakeSocket) SetReadDeadline(time.Time) error    { return nil }
func (s *fakeSocket) SetWriteDeadline(time.Time) error   { return nil }
func (s *fakeSocket) SetPongHandler(func(string) error) {}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.gone) })
	return nil
}

func (s *fakeSocket) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.out {
		var env protocol.Envelope
		_ = json.Unmarshal(b, &env)
		out = append(out, env.Type)
	}
	return out
}

func newTestHandler(r Router, m PresenceMirror) (*Handler, presence.Registry) {
	reg := presence.NewRegistry()
	v, _ := auth.NewJWTValidatorHS256(secret)
	return NewHandler(r, reg, m, v, Options{SendBuffer: 8, PingInterval: time.Hour}, zap.NewNop()), reg
}

func envelope(t *testing.T, typ, id string, payload any) []byte {
	t.Helper()
	b, err := protocol.Encode(typ, id, payload)
	require.NoError(t, err)
	return b
}

func drain(c *Conn) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		select {
		case b := <-c.send:
			var env protocol.Envelope
			_ = json.Unmarshal(b, &env)
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestHandle_SendMessage(t *testing.T) {
	r := &fakeRouter{}
	h, _ := newTestHandler(r, nil)
	c := newConn(nil, "alice", h.opts)

	h.handle(context.Background(), c, envelope(t, protocol.TypeSendMessage, "c1", protocol.SendMessage{Recipient: "bob", Content: "hi"}))

	out := drain(c)
	require.Len(t, out, 1)
	assert.Equal(t, protocol.TypeMessageSaved, out[0].Type)
	assert.Equal(t, "c1", out[0].ID)
	var saved protocol.MessageSaved
	require.NoError(t, json.Unmarshal(out[0].Payload, &saved))
	assert.Equal(t, "alice", saved.Message.SenderID)
	assert.Equal(t, "bob", saved.Message.RecipientID)
}

func TestHandle_SendMessageErrorKeepsConnection(t *testing.T) {
	r := &fakeRouter{err: apperr.DeliveryFailed(errors.New("mongo down"))}
	h, _ := newTestHandler(r, nil)
	c := newConn(nil, "alice", h.opts)

	h.handle(context.Background(), c, envelope(t, protocol.TypeSendMessage, "c2", protocol.SendMessage{Recipient: "bob", Content: "hi"}))

	out := drain(c)
	require.Len(t, out, 1)
	assert.Equal(t, protocol.TypeError, out[0].Type)
	var e protocol.Error
	require.NoError(t, json.Unmarshal(out[0].Payload, &e))
	assert.Equal(t, string(apperr.CodeDeliveryFailed), e.Code)
	assert.NotEmpty(t, e.Message)
	assert.False(t, c.closed())
}

func TestHandle_MarkReadPingUnknown(t *testing.T) {
	h, _ := newTestHandler(&fakeRouter{}, nil)
	c := newConn(nil, "bob", h.opts)

	h.handle(context.Background(), c, envelope(t, protocol.TypeMarkRead, "", protocol.MarkRead{MessageIDs: []string{"m1"}}))
	h.handle(context.Background(), c, envelope(t, protocol.TypePing, "p", nil))
	h.handle(context.Background(), c, envelope(t, "typing", "", nil))
	h.handle(context.Background(), c, []byte("{not json"))

	out := drain(c)
	require.Len(t, out, 4)
	assert.Equal(t, protocol.TypeReadReceipt, out[0].Type)
	assert.Equal(t, protocol.TypePong, out[1].Type)
	assert.Equal(t, "p", out[1].ID)
	assert.Equal(t, protocol.TypeError, out[2].Type)
	assert.Equal(t, protocol.TypeError, out[3].Type)
}

func TestHandle_RateLimited(t *testing.T) {
	h, _ := newTestHandler(&fakeRouter{}, nil)
	h.opts.EventsPerSecond, h.opts.EventBurst = 0.001, 2
	c := newConn(nil, "bob", h.opts)

	for i := 0; i < 3; i++ {
		h.handle(context.Background(), c, envelope(t, protocol.TypePing, "", nil))
	}
	out := drain(c)
	require.Len(t, out, 3)
	var e protocol.Error
	require.NoError(t, json.Unmarshal(out[2].Payload, &e))
	assert.Equal(t, string(apperr.CodeRateLimited), e.Code)
}

func TestSupersedeAndStaleDisconnect(t *testing.T) {
	m := &fakeMirror{}
	h, reg := newTestHandler(&fakeRouter{}, m)
	ctx := context.Background()

	old := newConn(nil, "alice", h.opts)
	h.attach(ctx, old)
	fresh := newConn(nil, "alice", h.opts)
	h.attach(ctx, fresh)

	out := drain(old)
	require.Len(t, out, 1)
	assert.Equal(t, protocol.TypeSessionReplaced, out[0].Type)
	assert.True(t, old.closed())
	assert.Equal(t, CloseSessionReplaced, old.code)

	h.detach(ctx, old)
	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, fresh.ID(), got.ID())
	assert.Equal(t, []string{"online:alice", "online:alice"}, m.list())

	h.detach(ctx, fresh)
	_, ok = reg.Lookup("alice")
	assert.False(t, ok)
	assert.Equal(t, "offline:alice", m.list()[2])
}

func TestRun_FlushesRepliesBeforeClose(t *testing.T) {
	m := &fakeMirror{}
	h, reg := newTestHandler(&fakeRouter{}, m)
	sock := newFakeSocket()

	sock.in <- envelope(t, protocol.TypePing, "1", nil)
	sock.in <- envelope(t, protocol.TypeSendMessage, "2", protocol.SendMessage{Recipient: "bob", Content: "yo"})
	close(sock.in)

	h.run(sock, "alice")

	assert.Equal(t, []string{protocol.TypePong, protocol.TypeMessageSaved}, sock.types())
	assert.Equal(t, []int{websocket.CloseNormalClosure}, sock.closes)
	assert.Zero(t, reg.Len())
	assert.Equal(t, []string{"online:alice", "offline:alice"}, m.list())
}

func TestUpgrade_RejectsBeforeRegistering(t *testing.T) {
	h, reg := newTestHandler(&fakeRouter{}, nil)
	app := fiber.New()
	app.Get("/ws", h.Upgrade(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	expiredTok, _ := expired.SignedString([]byte(secret))
	valid := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	validTok, _ := valid.SignedString([]byte(secret))

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing", "/ws", "", fiber.StatusUnauthorized},
		{"garbage", "/ws?token=abc", "", fiber.StatusUnauthorized},
		{"expired", "/ws?token=" + expiredTok, "", fiber.StatusUnauthorized},
		{"header without upgrade", "/ws", "Bearer " + validTok, fiber.StatusUpgradeRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	assert.Zero(t, reg.Len())
}

func TestShutdown_ClosesLiveConnections(t *testing.T) {
	m := &fakeMirror{}
	h, reg := newTestHandler(&fakeRouter{}, m)
	sock := newFakeSocket()

	finished := make(chan struct{})
	go func() {
		h.run(sock, "alice")
		close(finished)
	}()
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	<-finished

	sock.mu.Lock()
	assert.Equal(t, []int{websocket.CloseGoingAway}, sock.closes)
	sock.mu.Unlock()
	assert.Zero(t, reg.Len())
	assert.Equal(t, []string{"online:alice", "offline:alice"}, m.list())

	late := newFakeSocket()
	h.run(late, "bob")
	assert.Equal(t, []int{websocket.CloseGoingAway}, late.closes)
	assert.Empty(t, late.types())
	assert.Zero(t, reg.Len())
	assert.Equal(t, []string{"online:alice", "offline:alice"}, m.list())
}
