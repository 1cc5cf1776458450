package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peteat123/Peteat-sub001/internal/domain"
)

type captureWriter struct {
	msgs []kafkago.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestProducer_PublishMessageSent(t *testing.T) {
	w := &captureWriter{}
	p := &Producer{writer: w, topic: "message.sent"}
	m := &domain.Message{ID: "m1", SenderID: "zed", RecipientID: "amy", Body: "hi"}

	require.NoError(t, p.PublishMessageSent(context.Background(), m, true))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "amy:zed", string(w.msgs[0].Key))

	var ev MessageSent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, TypeMessageSent, ev.Type)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.True(t, ev.Live)
}

func TestProducer_PublishError(t *testing.T) {
	p := &Producer{writer: &captureWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), "k", map[string]string{"a": "b"})
	assert.EqualError(t, err, "broker down")
}
