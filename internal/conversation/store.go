package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps dialog state keyed by account key.
type Store interface {
	// Get returns the state and whether one exists.
	Get(ctx context.Context, key string) (State, bool, error)
	Put(ctx context.Context, key string, state State) error
	Delete(ctx context.Context, key string) error
}

type memoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStore keeps dialogs in process memory; they are lost on restart.
func NewMemoryStore() Store {
	return &memoryStore{states: make(map[string]State)}
}

func (s *memoryStore) Get(_ context.Context, key string) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return st, ok, nil
}

func (s *memoryStore) Put(_ context.Context, key string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

// RedisStore keeps dialogs in Redis so they survive restarts and can be shared
// by several bot processes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed store. A zero ttl keeps dialogs until
// they finish or are replaced.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return "conversation:v1:" + key
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (State, bool, error) {
	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, fmt.Errorf("decode conversation %s: %w", key, err)
	}
	return st, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(key), raw, s.ttl).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKey(key)).Err()
}
