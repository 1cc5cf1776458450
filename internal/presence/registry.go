package presence

import (
	"hash/fnv"
	"sync"
)

// Handle is a live connection that can receive encoded events.
type Handle interface {
	ID() string
	// Send queues an event without blocking; false means the event was dropped.
	Send(event []byte) bool
}

// Registry maps a user to its single active connection for this process.
type Registry interface {
	// Register records h as the active handle for userID and returns the
	// handle it superseded, if any.
	Register(userID string, h Handle) Handle
	Lookup(userID string) (Handle, bool)
	// Unregister clears userID only while h is still the active handle.
	Unregister(userID string, h Handle) bool
	Len() int
}

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	users map[string]Handle
}

// ShardedRegistry spreads users over fixed shards, each with its own lock.
type ShardedRegistry struct {
	shards [shardCount]*shard
}

func NewRegistry() *ShardedRegistry {
	r := &ShardedRegistry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]Handle)}
	}
	return r
}

func (r *ShardedRegistry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

func (r *ShardedRegistry) Register(userID string, h Handle) Handle {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[userID]
	s.users[userID] = h
	if !ok || prev.ID() == h.ID() {
		return nil
	}
	return prev
}

func (r *ShardedRegistry) Lookup(userID string) (Handle, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.users[userID]
	return h, ok
}

func (r *ShardedRegistry) Unregister(userID string, h Handle) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.users[userID]; ok && cur.ID() == h.ID() {
		delete(s.users, userID)
		return true
	}
	return false
}

func (r *ShardedRegistry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.users)
		s.mu.RUnlock()
	}
	return n
}
