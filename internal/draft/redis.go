package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one string value per draft under <prefix>:<scope>:<key>.
// The TTL stands in for the lifetime of a browser tab; every save refreshes
// it. Two writers in one scope race and the last write wins.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	codec  *Codec
	logger logger.Logger
}

type RedisOptions struct {
	Prefix   string
	TTL      time.Duration
	Registry *Registry
	Logger   logger.Logger
}

func NewRedisStore(client redis.Cmdable, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "draft"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &RedisStore{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		codec:  NewCodec(opts.Registry),
		logger: opts.Logger,
	}
}

func (s *RedisStore) redisKey(scope, key string) string {
	return s.prefix + ":" + scope + ":" + key
}

func (s *RedisStore) Load(ctx context.Context, scope, key string) (Draft, bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.DraftOperations.WithLabelValues("load", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.DraftOperations.WithLabelValues("load", "error").Inc()
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}
	return decode(s.codec, s.logger, scope, key, raw)
}

func (s *RedisStore) Save(ctx context.Context, scope, key string, d Draft) error {
	raw, err := s.codec.Encode(key, d)
	if err != nil {
		metrics.DraftOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.redisKey(scope, key), raw, s.ttl).Err(); err != nil {
		metrics.DraftOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, key, err)
	}
	metrics.DraftOperations.WithLabelValues("save", "ok").Inc()
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, scope, key string) error {
	return s.Clear(ctx, scope, key)
}

func (s *RedisStore) Clear(ctx context.Context, scope string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.redisKey(scope, k)
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		metrics.DraftOperations.WithLabelValues("clear", "error").Inc()
		return fmt.Errorf("%w: del: %v", ErrStoreUnavailable, err)
	}
	metrics.DraftOperations.WithLabelValues("clear", "ok").Inc()
	return nil
}

// decode is shared by the stores so corruption is reported the same way.
func decode(codec *Codec, log logger.Logger, scope, key string, raw []byte) (Draft, bool, error) {
	d, err := codec.Decode(key, raw)
	if err != nil {
		metrics.DraftOperations.WithLabelValues("load", "corrupt").Inc()
		log.Warn("corrupt draft", map[string]interface{}{
			"scope": scope,
			"key":   key,
			"error": err.Error(),
		})
		return nil, false, err
	}
	metrics.DraftOperations.WithLabelValues("load", "ok").Inc()
	return d, true, nil
}
