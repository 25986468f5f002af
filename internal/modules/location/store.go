// README: Driver pool stores: Redis GEO with metadata hashes, or in-memory.
package location

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"haul/internal/types"
)

const (
	driverGeoKey = "pool:drivers"
	// metadataTTL expires drivers that stopped reporting. Their GEO member is
	// pruned on the next query that finds it.
	metadataTTL = 15 * time.Minute
)

type Store interface {
	// Upsert reports whether the driver was not in the pool before.
	Upsert(ctx context.Context, d Driver) (bool, error)
	// Remove reports whether the driver was in the pool.
	Remove(ctx context.Context, id types.ID) (bool, error)
	Radius(ctx context.Context, origin types.Point, radiusKm float64, limit int) ([]Driver, error)
}

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{redis: rdb}
}

func (s *RedisStore) Upsert(ctx context.Context, d Driver) (bool, error) {
	added, err := s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(d.ID),
		Longitude: d.Position.Lng,
		Latitude:  d.Position.Lat,
	}).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis geo add")
	}
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, metaKey(d.ID), map[string]interface{}{
		"name":    d.Name,
		"rating":  strconv.FormatFloat(d.Rating, 'f', 2, 64),
		"vehicle": string(d.VehicleType),
		"updated": d.UpdatedAt.UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, metaKey(d.ID), metadataTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "redis driver metadata")
	}
	return added > 0, nil
}

func (s *RedisStore) Remove(ctx context.Context, id types.ID) (bool, error) {
	pipe := s.redis.TxPipeline()
	removed := pipe.ZRem(ctx, driverGeoKey, string(id))
	pipe.Del(ctx, metaKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "redis remove driver")
	}
	return removed.Val() > 0, nil
}

func (s *RedisStore) Radius(ctx context.Context, origin types.Point, radiusKm float64, limit int) ([]Driver, error) {
	res, err := s.redis.GeoRadius(ctx, driverGeoKey, origin.Lng, origin.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis geo radius")
	}
	if len(res) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	metas := make([]*redis.MapStringStringCmd, len(res))
	for i, g := range res {
		metas[i] = pipe.HGetAll(ctx, metaKey(types.ID(g.Name)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "redis driver metadata")
	}

	out := make([]Driver, 0, len(res))
	var stale []interface{}
	for i, g := range res {
		m := metas[i].Val()
		if len(m) == 0 {
			stale = append(stale, g.Name)
			continue
		}
		d := Driver{
			ID:          types.ID(g.Name),
			Name:        m["name"],
			VehicleType: types.VehicleType(m["vehicle"]),
			Position:    types.Point{Lat: g.Latitude, Lng: g.Longitude},
			DistanceKm:  g.Dist,
		}
		if f, err := strconv.ParseFloat(m["rating"], 64); err == nil {
			d.Rating = f
		}
		if t, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
			d.UpdatedAt = t
		}
		out = append(out, d)
	}
	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, driverGeoKey, stale...).Err(); err != nil {
			return out, errors.Wrap(err, "redis prune stale drivers")
		}
	}
	return out, nil
}

func metaKey(id types.ID) string {
	return fmt.Sprintf("pool:driver:%s", string(id))
}

// MemoryStore is the single-process pool used when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	drivers map[types.ID]Driver
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drivers: make(map[types.ID]Driver)}
}

func (s *MemoryStore) Upsert(_ context.Context, d Driver) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.drivers[d.ID]
	s.drivers[d.ID] = d
	return !existed, nil
}

func (s *MemoryStore) Remove(_ context.Context, id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.drivers[id]
	delete(s.drivers, id)
	return existed, nil
}

func (s *MemoryStore) Radius(_ context.Context, origin types.Point, radiusKm float64, limit int) ([]Driver, error) {
	s.mu.RLock()
	all := make([]Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		all = append(all, d)
	}
	s.mu.RUnlock()

	out := withinRadius(all, origin, radiusKm)
	sortByDistance(out, func(d Driver) float64 { return d.DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
