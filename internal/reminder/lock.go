package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock is a SET NX lock so only one instance sweeps at a time.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
}

func NewRedisLock(c *redis.Client, prefix string) *RedisLock {
	return &RedisLock{client: c, key: fmt.Sprintf("%s:lock:reminder-run", prefix)}
}

func (l *RedisLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	l.token = token
	return true, nil
}

// Release only deletes the key while this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	l.token = ""
	return err
}
