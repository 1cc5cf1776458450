package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peteat123/Peteat-sub001/internal/metrics"
)

// DeadLetterEntry is one rejected chunk as written to the dead-letter topic.
type DeadLetterEntry struct {
	Messages []Message `json:"messages"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
	Attempts int       `json:"attempts"`
}

// Replayer resubmits dead-lettered chunks. A chunk that keeps failing is
// re-queued until MaxAttempts, then dropped.
type Replayer struct {
	gateway     Gateway
	dlq         DeadLetter
	maxAttempts int
	log         *zap.Logger
	now         func() time.Time
}

func NewReplayer(gw Gateway, dlq DeadLetter, maxAttempts int, log *zap.Logger) *Replayer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Replayer{gateway: gw, dlq: dlq, maxAttempts: maxAttempts, log: log, now: time.Now}
}

// Handle processes one raw dead-letter record. Malformed records are dropped
// and reported; they are never retried.
func (r *Replayer) Handle(ctx context.Context, raw []byte) error {
	var e DeadLetterEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("decode dead letter: %w", err)
	}
	if len(e.Messages) == 0 {
		return nil
	}

	_, err := r.gateway.Send(ctx, e.Messages)
	if err == nil {
		metrics.PushChunks.WithLabelValues("replayed").Inc()
		metrics.PushMessages.Add(float64(len(e.Messages)))
		r.log.Info("dead letter replayed", zap.Int("size", len(e.Messages)), zap.Int("attempts", e.Attempts+1))
		return nil
	}

	e.Error = err.Error()
	e.Attempts++
	e.FailedAt = r.now().UTC()
	if e.Attempts >= r.maxAttempts {
		metrics.PushChunks.WithLabelValues("dropped").Inc()
		r.log.Error("dead letter dropped", zap.Int("size", len(e.Messages)), zap.Int("attempts", e.Attempts), zap.String("error", e.Error))
		return nil
	}
	if err := r.dlq.Publish(ctx, uuid.NewString(), e); err != nil {
		return fmt.Errorf("requeue dead letter: %w", err)
	}
	return nil
}
