package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// scriptedReader serves queued records, then blocks until ctx is done.
type scriptedReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	fetchErrs []error
	committed []int64
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafkago.Message{}, err
	}
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func TestConsumer_CommitsEvenWhenHandlerFails(t *testing.T) {
	reader := &scriptedReader{
		fetchErrs: []error{errors.New("rebalance in progress")},
		queue: []kafkago.Message{
			{Offset: 1, Value: []byte("a")},
			{Offset: 2, Value: []byte("b")},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())

	var seen []string
	c := &Consumer{
		reader: reader,
		log:    zap.NewNop(),
		handler: func(_ context.Context, v []byte) error {
			seen = append(seen, string(v))
			if len(seen) == 2 {
				cancel()
				return errors.New("bad record")
			}
			return nil
		},
	}

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}
