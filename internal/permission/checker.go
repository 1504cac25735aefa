package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportedChecker reads statuses the device reported, kept in a Redis hash
// perm:<subject>. A kind with no report is Pending.
type ReportedChecker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewReportedChecker(client redis.Cmdable, ttl time.Duration) *ReportedChecker {
	return &ReportedChecker{client: client, ttl: ttl}
}

func hashKey(subject string) string { return "perm:" + subject }

func (c *ReportedChecker) Check(ctx context.Context, subject string, kind Kind) (Status, error) {
	v, err := c.client.HGet(ctx, hashKey(subject), string(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return Pending, nil
	}
	if err != nil {
		return Pending, err
	}
	var st Status
	if err := st.UnmarshalText([]byte(v)); err != nil {
		return Pending, err
	}
	return st, nil
}

// Record stores device reports for subject.
func (c *ReportedChecker) Record(ctx context.Context, subject string, reports map[Kind]Status) error {
	if len(reports) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(reports))
	for k, st := range reports {
		values[string(k)] = st.String()
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, hashKey(subject), values)
	if c.ttl > 0 {
		pipe.Expire(ctx, hashKey(subject), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record permissions: %w", err)
	}
	return nil
}

// StaticChecker returns fixed statuses, Pending for anything unset.
type StaticChecker struct {
	mu       sync.RWMutex
	statuses map[string]map[Kind]Status
}

func NewStaticChecker() *StaticChecker {
	return &StaticChecker{statuses: make(map[string]map[Kind]Status)}
}

func (c *StaticChecker) Set(subject string, kind Kind, st Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses[subject] == nil {
		c.statuses[subject] = make(map[Kind]Status)
	}
	c.statuses[subject][kind] = st
}

func (c *StaticChecker) Record(_ context.Context, subject string, reports map[Kind]Status) error {
	for k, st := range reports {
		c.Set(subject, k, st)
	}
	return nil
}

func (c *StaticChecker) Check(_ context.Context, subject string, kind Kind) (Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses[subject][kind], nil
}

// Recorder is implemented by checkers that accept device reports.
type Recorder interface {
	Checker
	Record(ctx context.Context, subject string, reports map[Kind]Status) error
}
