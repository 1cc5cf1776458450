package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/delivery"
	"github.com/peteat123/Peteat-sub001/internal/metrics"
	"github.com/peteat123/Peteat-sub001/internal/protocol"
)

// handle processes one inbound frame. Failures are reported to the client as
// error events; the connection stays open.
func (h *Handler) handle(ctx context.Context, c *Conn, data []byte) {
	if !c.limiter.Allow() {
		metrics.RateLimitHits.WithLabelValues("ws").Inc()
		h.replyErr(c, "", apperr.RateLimited("too many events"))
		return
	}

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.InboundEvents.WithLabelValues("malformed").Inc()
		h.replyErr(c, "", apperr.InvalidArgument("malformed event"))
		return
	}

	switch env.Type {
	case protocol.TypeSendMessage:
		metrics.InboundEvents.WithLabelValues(env.Type).Inc()
		var p protocol.SendMessage
		if err := decode(env.Payload, &p); err != nil {
			h.replyErr(c, env.ID, apperr.InvalidMessage("malformed send-message payload"))
			return
		}
		msg, err := h.router.Send(ctx, c.userID, delivery.SendRequest{
			RecipientID: p.Recipient,
			Content:     p.Content,
			Attachments: p.Attachments,
		})
		if err != nil {
			h.replyErr(c, env.ID, err)
			return
		}
		h.reply(c, protocol.TypeMessageSaved, env.ID, protocol.MessageSaved{Message: msg})

	case protocol.TypeMarkRead:
		metrics.InboundEvents.WithLabelValues(env.Type).Inc()
		var p protocol.MarkRead
		if err := decode(env.Payload, &p); err != nil {
			h.replyErr(c, env.ID, apperr.InvalidArgument("malformed mark-read payload"))
			return
		}
		ids, err := h.router.MarkRead(ctx, c.userID, p.MessageIDs)
		if err != nil {
			h.log.Error("mark read failed", zap.String("user_id", c.userID), zap.Error(err))
			h.replyErr(c, env.ID, err)
			return
		}
		h.reply(c, protocol.TypeReadReceipt, env.ID, protocol.ReadReceipt{MessageIDs: ids})

	case protocol.TypePing:
		metrics.InboundEvents.WithLabelValues(env.Type).Inc()
		h.reply(c, protocol.TypePong, env.ID, nil)

	default:
		metrics.InboundEvents.WithLabelValues("unknown").Inc()
		h.replyErr(c, env.ID, apperr.InvalidArgument("unknown event type "+env.Type))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (h *Handler) reply(c *Conn, typ, id string, payload any) {
	b, err := protocol.Encode(typ, id, payload)
	if err != nil {
		h.log.Error("encode reply", zap.String("type", typ), zap.Error(err))
		return
	}
	if !c.Send(b) {
		h.log.Warn("reply dropped", zap.String("user_id", c.userID), zap.String("type", typ))
	}
}

func (h *Handler) replyErr(c *Conn, id string, err error) {
	h.reply(c, protocol.TypeError, id, protocol.Error{
		Message: apperr.MessageOf(err),
		Code:    string(apperr.CodeOf(err)),
	})
}
