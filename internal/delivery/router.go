package delivery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/domain"
	"github.com/peteat123/Peteat-sub001/internal/metrics"
	"github.com/peteat123/Peteat-sub001/internal/presence"
	"github.com/peteat123/Peteat-sub001/internal/protocol"
	"github.com/peteat123/Peteat-sub001/internal/push"
)

type MessageStore interface {
	Append(ctx context.Context, sender, recipient, body string, attachments []string) (*domain.Message, error)
	MarkRead(ctx context.Context, recipient string, ids []string) (int64, error)
}

type ConversationStore interface {
	Upsert(ctx context.Context, a, b, preview, senderID string, at time.Time) (*domain.Conversation, error)
}

type EventPublisher interface {
	PublishMessageSent(ctx context.Context, m *domain.Message, live bool) error
}

type SendRequest struct {
	RecipientID string
	Content     string
	Attachments []string
}

// Router persists outgoing messages and delivers them live or by push.
type Router struct {
	messages      MessageStore
	conversations ConversationStore
	registry      presence.Registry
	pusher        push.Sender
	events        EventPublisher
	log           *zap.Logger

	pushTimeout  time.Duration
	eventTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewRouter(ms MessageStore, cs ConversationStore, reg presence.Registry, pusher push.Sender, events EventPublisher, log *zap.Logger) *Router {
	return &Router{
		messages:      ms,
		conversations: cs,
		registry:      reg,
		pusher:        pusher,
		events:        events,
		log:           log,
		pushTimeout:   30 * time.Second,
		eventTimeout:  5 * time.Second,
	}
}

// Send stores the message and routes it. The returned error is either
// InvalidMessage or DeliveryFailed; everything after the store write is
// best-effort and only logged.
func (r *Router) Send(ctx context.Context, senderID string, req SendRequest) (*domain.Message, error) {
	msg, err := r.messages.Append(ctx, senderID, req.RecipientID, req.Content, req.Attachments)
	if err != nil {
		metrics.Deliveries.WithLabelValues("failed").Inc()
		if apperr.CodeOf(err) == apperr.CodeInvalidMessage {
			return nil, err
		}
		r.log.Error("message not stored", zap.String("sender", senderID), zap.String("recipient", req.RecipientID), zap.Error(err))
		return nil, apperr.DeliveryFailed(err)
	}

	conv, err := r.conversations.Upsert(ctx, msg.SenderID, msg.RecipientID, msg.Preview(), msg.SenderID, msg.CreatedAt)
	if err != nil {
		r.degraded("conversation", msg, err)
		conv = nil
	}

	live := r.deliverLive(msg, conv)
	if !live {
		r.pushFallback(ctx, msg)
	}

	if r.events != nil {
		r.publish(ctx, msg, live)
	}
	return msg, nil
}

// publish emits message.sent off the sender's ack path.
func (r *Router) publish(ctx context.Context, msg *domain.Message, live bool) {
	ok := r.background(ctx, r.eventTimeout, func(ectx context.Context) {
		if err := r.events.PublishMessageSent(ectx, msg, live); err != nil {
			r.degraded("event", msg, err)
		}
	})
	if !ok {
		r.degraded("event", msg, errRouterClosed)
	}
}

// background runs fn on a context detached from ctx's cancellation and
// bounded by timeout. It reports false once the router is closed.
func (r *Router) background(ctx context.Context, timeout time.Duration, fn func(context.Context)) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	go func() {
		defer r.inflight.Done()
		defer cancel()
		fn(bctx)
	}()
	return true
}

// deliverLive reports whether the recipient's connection accepted the message.
func (r *Router) deliverLive(msg *domain.Message, conv *domain.Conversation) bool {
	h, ok := r.registry.Lookup(msg.RecipientID)
	if !ok {
		return false
	}
	if !h.Send(protocol.MustEncode(protocol.TypeReceiveMessage, "", protocol.ReceiveMessage{Message: msg})) {
		r.degraded("live", msg, errSendBufferFull)
		return false
	}
	metrics.Deliveries.WithLabelValues("live").Inc()

	if conv != nil {
		update := protocol.MustEncode(protocol.TypeConversationUpdated, "", protocol.ConversationUpdated{Conversation: conv})
		h.Send(update)
		if sh, ok := r.registry.Lookup(msg.SenderID); ok {
			sh.Send(update)
		}
	}
	return true
}

// pushFallback hands the message to push dispatch without holding up the
// sender's connection.
func (r *Router) pushFallback(ctx context.Context, msg *domain.Message) {
	metrics.Deliveries.WithLabelValues("push").Inc()
	p := push.Payload{
		Title: "New message",
		Body:  msg.Preview(),
		Data: map[string]string{
			"type":      "message",
			"messageId": msg.ID,
			"senderId":  msg.SenderID,
		},
	}
	ok := r.background(ctx, r.pushTimeout, func(pctx context.Context) {
		rep := r.pusher.SendToUsers(pctx, []string{msg.RecipientID}, p)
		if rep.FailedChunks > 0 {
			r.degraded("push", msg, apperr.ErrDispatchPartialFailure)
		}
	})
	if !ok {
		r.degraded("push", msg, errRouterClosed)
	}
}

// MarkRead marks the caller's received messages as read and returns the
// de-duplicated ids for the read receipt.
func (r *Router) MarkRead(ctx context.Context, userID string, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	if len(uniq) == 0 {
		return uniq, nil
	}
	if _, err := r.messages.MarkRead(ctx, userID, uniq); err != nil {
		return nil, err
	}
	return uniq, nil
}

// Wait blocks until in-flight push fallbacks and events finish.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// Close stops accepting background work and waits for what is running.
// Messages sent afterwards are still stored but neither pushed nor published.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.inflight.Wait()
}

func (r *Router) degraded(step string, msg *domain.Message, err error) {
	metrics.RoutingDegraded.WithLabelValues(step).Inc()
	r.log.Warn("routing degraded",
		zap.String("step", step),
		zap.String("message_id", msg.ID),
		zap.Error(apperr.RoutingDegraded(step, err)))
}
