// README: Dispatch registry backed by Redis keys and sets, or in-memory.
package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"haul/internal/types"
)

const (
	dispatchKeyPrefix = "matching:order:%s:dispatched_at"
	notifiedKeyPrefix = "matching:order:%s:notified"
)

// Store remembers which orders already have an offer generation running and
// which drivers were asked to bid.
type Store interface {
	// MarkDispatched reports true only for the first call per order.
	MarkDispatched(ctx context.Context, orderID types.ID, at time.Time) (bool, error)
	DispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error)
	RecordNotified(ctx context.Context, orderID types.ID, driverIDs ...types.ID) error
	Notified(ctx context.Context, orderID types.ID) ([]types.ID, error)
}

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{redis: rdb}
}

func (s *RedisStore) MarkDispatched(ctx context.Context, orderID types.ID, at time.Time) (bool, error) {
	ok, err := s.redis.SetNX(ctx, dispatchedAtKey(orderID), at.UTC().Format(time.RFC3339Nano), keyTTL).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis mark dispatched")
	}
	return ok, nil
}

// DispatchedAt returns when the order was first dispatched, and whether it has been dispatched.
func (s *RedisStore) DispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(orderID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "redis get dispatched")
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "parse dispatched_at")
	}
	return t, true, nil
}

func (s *RedisStore) RecordNotified(ctx context.Context, orderID types.ID, driverIDs ...types.ID) error {
	if len(driverIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(driverIDs))
	for i, d := range driverIDs {
		members[i] = string(d)
	}
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, notifiedKey(orderID), members...)
	pipe.Expire(ctx, notifiedKey(orderID), keyTTL)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "redis record notified")
}

func (s *RedisStore) Notified(ctx context.Context, orderID types.ID) ([]types.ID, error) {
	vals, err := s.redis.SMembers(ctx, notifiedKey(orderID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis notified")
	}
	ids := make([]types.ID, len(vals))
	for i, v := range vals {
		ids[i] = types.ID(v)
	}
	return ids, nil
}

func dispatchedAtKey(orderID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(orderID))
}

func notifiedKey(orderID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(orderID))
}

type MemoryStore struct {
	mu         sync.Mutex
	dispatched map[types.ID]time.Time
	notified   map[types.ID]map[types.ID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dispatched: make(map[types.ID]time.Time),
		notified:   make(map[types.ID]map[types.ID]struct{}),
	}
}

func (m *MemoryStore) MarkDispatched(_ context.Context, orderID types.ID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dispatched[orderID]; ok {
		return false, nil
	}
	m.dispatched[orderID] = at
	return true, nil
}

func (m *MemoryStore) DispatchedAt(_ context.Context, orderID types.ID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.dispatched[orderID]
	return t, ok, nil
}

func (m *MemoryStore) RecordNotified(_ context.Context, orderID types.ID, driverIDs ...types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.notified[orderID]
	if !ok {
		set = make(map[types.ID]struct{})
		m.notified[orderID] = set
	}
	for _, d := range driverIDs {
		set[d] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) Notified(_ context.Context, orderID types.ID) ([]types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ID, 0, len(m.notified[orderID]))
	for d := range m.notified[orderID] {
		out = append(out, d)
	}
	return out, nil
}
