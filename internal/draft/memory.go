package draft

import (
	"context"
	"fmt"
	"sync"

	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"
)

// MemoryStore is an in-process Store sharing the Redis codec.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	codec  *Codec
	logger logger.Logger
}

func NewMemoryStore(registry *Registry, log logger.Logger) *MemoryStore {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &MemoryStore{
		blobs:  make(map[string][]byte),
		codec:  NewCodec(registry),
		logger: log,
	}
}

func memKey(scope, key string) string { return scope + "\x00" + key }

func (s *MemoryStore) Load(_ context.Context, scope, key string) (Draft, bool, error) {
	s.mu.RLock()
	raw, ok := s.blobs[memKey(scope, key)]
	s.mu.RUnlock()
	if !ok {
		metrics.DraftOperations.WithLabelValues("load", "miss").Inc()
		return nil, false, nil
	}
	return decode(s.codec, s.logger, scope, key, raw)
}

func (s *MemoryStore) Save(_ context.Context, scope, key string, d Draft) error {
	raw, err := s.codec.Encode(key, d)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	s.blobs[memKey(scope, key)] = raw
	s.mu.Unlock()
	metrics.DraftOperations.WithLabelValues("save", "ok").Inc()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, scope, key string) error {
	return s.Clear(ctx, scope, key)
}

func (s *MemoryStore) Clear(_ context.Context, scope string, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.blobs, memKey(scope, k))
	}
	s.mu.Unlock()
	metrics.DraftOperations.WithLabelValues("clear", "ok").Inc()
	return nil
}

// PutRaw stores raw bytes unchanged, for seeding legacy or damaged blobs.
func (s *MemoryStore) PutRaw(scope, key string, raw []byte) {
	s.mu.Lock()
	s.blobs[memKey(scope, key)] = append([]byte(nil), raw...)
	s.mu.Unlock()
}

// Len is the number of stored blobs across all scopes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
