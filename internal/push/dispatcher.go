package push

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
	"github.com/peteat123/Peteat-sub001/internal/domain"
	"github.com/peteat123/Peteat-sub001/internal/metrics"
)

type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Report summarises one dispatch. It is informational; dispatch never fails
// its caller.
type Report struct {
	Tokens        int `json:"tokens"`
	Valid         int `json:"valid"`
	Chunks        int `json:"chunks"`
	FailedChunks  int `json:"failed_chunks"`
	Notifications int `json:"notifications"`
}

type TokenStore interface {
	ForUsers(ctx context.Context, userIDs []string) ([]domain.PushToken, error)
	AllExcept(ctx context.Context, userID string) ([]domain.PushToken, error)
	Delete(ctx context.Context, token, ownerID string) error
}

type NotificationStore interface {
	CreateMany(ctx context.Context, ns []domain.Notification) error
}

// DeadLetter receives chunks the gateway rejected, for later replay.
type DeadLetter interface {
	Publish(ctx context.Context, key string, payload any) error
}

type Sender interface {
	SendToUsers(ctx context.Context, userIDs []string, p Payload) Report
	BroadcastExcept(ctx context.Context, excludedUserID string, p Payload) Report
}

type Dispatcher struct {
	tokens   TokenStore
	notifs   NotificationStore
	gateway  Gateway
	dlq      DeadLetter
	maxBatch int
	log      *zap.Logger
	now      func() time.Time
}

func NewDispatcher(tokens TokenStore, notifs NotificationStore, gw Gateway, dlq DeadLetter, maxBatch int, log *zap.Logger) *Dispatcher {
	if maxBatch <= 0 || maxBatch > MaxBatch {
		maxBatch = MaxBatch
	}
	return &Dispatcher{
		tokens:   tokens,
		notifs:   notifs,
		gateway:  gw,
		dlq:      dlq,
		maxBatch: maxBatch,
		log:      log,
		now:      time.Now,
	}
}

func (d *Dispatcher) SendToUsers(ctx context.Context, userIDs []string, p Payload) Report {
	toks, err := d.tokens.ForUsers(ctx, userIDs)
	if err != nil {
		d.log.Error("push token lookup failed", zap.Strings("users", userIDs), zap.Error(err))
		return Report{}
	}
	return d.dispatch(ctx, toks, p)
}

// BroadcastExcept notifies every known device not owned by excludedUserID.
func (d *Dispatcher) BroadcastExcept(ctx context.Context, excludedUserID string, p Payload) Report {
	toks, err := d.tokens.AllExcept(ctx, excludedUserID)
	if err != nil {
		d.log.Error("push token lookup failed", zap.String("excluded", excludedUserID), zap.Error(err))
		return Report{}
	}
	return d.dispatch(ctx, toks, p)
}

func (d *Dispatcher) dispatch(ctx context.Context, toks []domain.PushToken, p Payload) Report {
	rep := Report{Tokens: len(toks)}

	msgs := make([]Message, 0, len(toks))
	owners := make(map[string]struct{}, len(toks))
	inbox := make([]domain.Notification, 0, len(toks))
	now := d.now().UTC()
	for _, t := range toks {
		if _, seen := owners[t.UserID]; !seen {
			owners[t.UserID] = struct{}{}
			inbox = append(inbox, domain.Notification{
				ID:        uuid.NewString(),
				UserID:    t.UserID,
				Title:     p.Title,
				Body:      p.Body,
				Data:      p.Data,
				CreatedAt: now,
			})
		}
		if !IsValidToken(t.Token) {
			d.log.Debug("skipping invalid push token", zap.String("user", t.UserID))
			continue
		}
		msgs = append(msgs, Message{
			To:       t.Token,
			Title:    p.Title,
			Body:     p.Body,
			Data:     p.Data,
			Sound:    "default",
			Priority: "high",
		})
	}
	rep.Valid = len(msgs)

	// inbox records are written whatever the gateway later says
	if err := d.notifs.CreateMany(ctx, inbox); err != nil {
		d.log.Warn("notification records not stored", zap.Int("count", len(inbox)), zap.Error(err))
	} else {
		rep.Notifications = len(inbox)
	}

	chunks := Chunk(msgs, d.maxBatch)
	rep.Chunks = len(chunks)
	for i, chunk := range chunks {
		if err := d.sendChunk(ctx, chunk); err != nil {
			rep.FailedChunks++
			metrics.PushChunks.WithLabelValues("failed").Inc()
			d.log.Error("push chunk failed",
				zap.Int("chunk", i),
				zap.Int("size", len(chunk)),
				zap.Error(apperr.DispatchPartialFailure(rep.FailedChunks, len(chunks), err)))
			d.deadLetter(ctx, chunk, err)
			continue
		}
		metrics.PushChunks.WithLabelValues("ok").Inc()
		metrics.PushMessages.Add(float64(len(chunk)))
	}
	return rep
}

func (d *Dispatcher) sendChunk(ctx context.Context, chunk []Message) error {
	tickets, err := d.gateway.Send(ctx, chunk)
	if err != nil {
		return err
	}
	for i, t := range tickets {
		if t.Status != TicketError || i >= len(chunk) {
			continue
		}
		d.log.Warn("push ticket error", zap.String("error", t.Details.Error), zap.String("message", t.Message))
		if t.Details.Error == ErrorDeviceNotRegistered {
			if err := d.tokens.Delete(ctx, chunk[i].To, ""); err != nil {
				d.log.Debug("stale token not removed", zap.Error(err))
			}
		}
	}
	return nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, chunk []Message, cause error) {
	if d.dlq == nil {
		return
	}
	entry := DeadLetterEntry{Messages: chunk, Error: cause.Error(), FailedAt: d.now().UTC(), Attempts: 1}
	if err := d.dlq.Publish(ctx, uuid.NewString(), entry); err != nil {
		d.log.Error("dlq push failed", zap.Error(err))
	}
}
