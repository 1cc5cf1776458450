package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// CloseSessionReplaced is sent when a newer connection of the same user
// takes over.
const CloseSessionReplaced = 4001

// socket is the subset of *websocket.Conn the pumps use.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Conn is one authenticated client connection. It implements presence.Handle.
type Conn struct {
	id     string
	userID string
	sock   socket

	send    chan []byte
	done    chan struct{}
	once    sync.Once
	code    int
	reason  string
	limiter *rate.Limiter
}

func newConn(sock socket, userID string, opts Options) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		userID:  userID,
		sock:    sock,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		code:    websocket.CloseNormalClosure,
		limiter: rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.EventBurst),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) UserID() string { return c.userID }

// Send queues b without blocking. It returns false when the connection is
// closed or its buffer is full.
func (c *Conn) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close asks the write pump to flush queued frames and close with code.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		c.code, c.reason = code, reason
		close(c.done)
	})
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()
	for {
		select {
		case b := <-c.send:
			if err := c.write(b, opts.WriteDeadline); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(opts.WriteDeadline)); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.done:
			c.flush(opts.WriteDeadline)
			_ = c.sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.code, c.reason), time.Now().Add(opts.WriteDeadline))
			return
		}
	}
}

func (c *Conn) flush(deadline time.Duration) {
	for {
		select {
		case b := <-c.send:
			if err := c.write(b, deadline); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(b []byte, deadline time.Duration) error {
	_ = c.sock.SetWriteDeadline(time.Now().Add(deadline))
	return c.sock.WriteMessage(websocket.TextMessage, b)
}
