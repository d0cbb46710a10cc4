package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot keeps the last successfully fetched collection per scope in
// Redis so consumers can tell "empty board" apart from "fetch failed" and
// fall back to stale data when they choose to. It never masks errors: a
// failed fetch still fails; the cached copy is offered separately.
type Snapshot[E any] struct {
	entityType string
	redis      *redis.Client
	ttl        time.Duration
}

func NewSnapshot[E any](entityType string, client *redis.Client, ttl time.Duration) *Snapshot[E] {
	if ttl < 0 {
		ttl = 0
	}
	return &Snapshot[E]{entityType: entityType, redis: client, ttl: ttl}
}

func (s *Snapshot[E]) key(scope string) string {
	return "snapshot:" + s.entityType + ":" + scope
}

// Store records the collection as the scope's last-good snapshot.
func (s *Snapshot[E]) Store(ctx context.Context, scope string, items []E) {
	if s == nil || s.redis == nil {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, s.key(scope), data, s.ttl).Err()
}

// Load returns the scope's last-good snapshot, if one exists. A corrupt
// snapshot is dropped rather than returned.
func (s *Snapshot[E]) Load(ctx context.Context, scope string) ([]E, bool) {
	if s == nil || s.redis == nil {
		return nil, false
	}
	data, err := s.redis.Get(ctx, s.key(scope)).Bytes()
	if err != nil {
		return nil, false
	}
	var items []E
	if err := json.Unmarshal(data, &items); err != nil {
		_ = s.redis.Del(ctx, s.key(scope)).Err()
		return nil, false
	}
	return items, true
}

// Evict drops the scope's snapshot.
func (s *Snapshot[E]) Evict(ctx context.Context, scope string) {
	if s == nil || s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, s.key(scope)).Err()
}
