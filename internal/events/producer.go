package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/peteat123/Peteat-sub001/internal/domain"
)

const TypeMessageSent = "message.sent"

// MessageSent is the payload written to the message-sent topic.
type MessageSent struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
	Live    bool            `json:"live"`
	SentAt  time.Time       `json:"sent_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w, topic: topic}
}

// PublishMessageSent keys the event by canonical pair so one conversation
// stays on one partition.
func (p *Producer) PublishMessageSent(ctx context.Context, m *domain.Message, live bool) error {
	b, err := json.Marshal(MessageSent{Type: TypeMessageSent, Message: m, Live: live, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	key, _ := domain.PairKey(m.SenderID, m.RecipientID)
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	})
}

// Publish writes a raw payload under key.
func (p *Producer) Publish(ctx context.Context, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(key), Value: b, Time: time.Now()})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
