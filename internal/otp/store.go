package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps outstanding challenges.
type Store interface {
	Get(ctx context.Context, subject, purpose string) (*Challenge, error)
	Put(ctx context.Context, c *Challenge, ttl time.Duration) error
	Delete(ctx context.Context, subject, purpose string) error
}

// RedisStore keeps each challenge as JSON under otp:<subject>:<purpose>.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(subject, purpose string) string {
	return "otp:" + subject + ":" + purpose
}

func (s *RedisStore) Get(ctx context.Context, subject, purpose string) (*Challenge, error) {
	raw, err := s.client.Get(ctx, redisKey(subject, purpose)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	var c Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) Put(ctx context.Context, c *Challenge, ttl time.Duration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(c.Subject, c.Purpose), data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, subject, purpose string) error {
	return s.client.Del(ctx, redisKey(subject, purpose)).Err()
}

// MemoryStore ignores TTLs.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]Challenge)}
}

func (s *MemoryStore) Get(_ context.Context, subject, purpose string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[redisKey(subject, purpose)]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return &c, nil
}

func (s *MemoryStore) Put(_ context.Context, c *Challenge, _ time.Duration) error {
	s.mu.Lock()
	s.challenges[redisKey(c.Subject, c.Purpose)] = *c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, subject, purpose string) error {
	s.mu.Lock()
	delete(s.challenges, redisKey(subject, purpose))
	s.mu.Unlock()
	return nil
}
