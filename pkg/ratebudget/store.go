package ratebudget

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis key for shared budget state.
const redisKeyState = "duckport:ratebudget:state"

// Store persists budget state between requests. The in-memory store covers a
// single process; the Redis store shares one budget across every process
// exporting the same project.
type Store interface {
	// Load returns the stored state, or ok=false when none exists yet.
	Load(ctx context.Context) (state *State, ok bool, err error)

	// Save replaces the stored state.
	Save(ctx context.Context, state *State) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (*State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, false, nil
	}
	copied := *m.state
	return &copied, true, nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *state
	m.state = &copied
	return nil
}

// RedisStore shares budget state across processes via Redis. The entry
// expires with the budget window so stale state cannot outlive a reset.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*State, bool, error) {
	data, err := r.redis.Get(ctx, redisKeyState).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get budget state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, false, fmt.Errorf("parse budget state: %w", err)
	}
	return &state, true, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal budget state: %w", err)
	}

	ttl := state.TimeUntilReset()
	if ttl <= 0 {
		// Window already reset; nothing worth sharing.
		return nil
	}

	if err := r.redis.Set(ctx, redisKeyState, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set budget state: %w", err)
	}
	return nil
}
