package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Status struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

// Mirror publishes this process's presence into Redis for other services.
// Keys: <prefix>:presence:<user> -> {status,last_seen}
// Routing never reads it back.
type Mirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewMirror(c *redis.Client, prefix string, ttl time.Duration) *Mirror {
	return &Mirror{client: c, prefix: prefix, ttl: ttl}
}

func (m *Mirror) key(userID string) string { return fmt.Sprintf("%s:presence:%s", m.prefix, userID) }

func (m *Mirror) channel(userID string) string { return fmt.Sprintf("%s:presence-events:%s", m.prefix, userID) }

func (m *Mirror) Online(ctx context.Context, userID string) error {
	return m.set(ctx, userID, StatusOnline, m.ttl)
}

// Offline keeps last_seen around without expiry.
func (m *Mirror) Offline(ctx context.Context, userID string) error {
	return m.set(ctx, userID, StatusOffline, 0)
}

func (m *Mirror) set(ctx context.Context, userID, status string, ttl time.Duration) error {
	b, err := json.Marshal(Status{Status: status, LastSeen: time.Now().Unix()})
	if err != nil {
		return err
	}
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.key(userID), b, ttl)
	pipe.Publish(ctx, m.channel(userID), b)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *Mirror) Get(ctx context.Context, userID string) (*Status, error) {
	b, err := m.client.Get(ctx, m.key(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &Status{Status: StatusOffline}, nil
		}
		return nil, err
	}
	var s Status
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
