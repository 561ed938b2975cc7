// README: Presence store backed by Redis GEO plus a last-seen sorted set.
package location

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"fooddash/internal/types"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Record stores the position and the heartbeat instant in one round trip.
func (s *Store) Record(ctx context.Context, hb Heartbeat) error {
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(hb.DriverID),
		Longitude: hb.Position.Lng,
		Latitude:  hb.Position.Lat,
	})
	pipe.ZAdd(ctx, driverLastSeenKey, redis.Z{
		Score:  float64(hb.At.UnixMilli()),
		Member: string(hb.DriverID),
	})
	_, err := pipe.Exec(ctx)
	return err
}

// Touch refreshes the last-seen instant without a position.
func (s *Store) Touch(ctx context.Context, id types.ID, at time.Time) error {
	return s.redis.ZAdd(ctx, driverLastSeenKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: string(id),
	}).Err()
}

// LastSeen returns the last heartbeat per driver; drivers never seen are absent.
func (s *Store) LastSeen(ctx context.Context, ids []types.ID) (map[types.ID]time.Time, error) {
	out := make(map[types.ID]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	members := make([]string, len(ids))
	for i, id := range ids {
		members[i] = string(id)
	}
	scores, err := s.redis.ZMScore(ctx, driverLastSeenKey, members...).Result()
	if err != nil {
		return nil, err
	}
	for i, score := range scores {
		// ZMSCORE reports missing members as 0.
		if score == 0 {
			continue
		}
		out[ids[i]] = time.UnixMilli(int64(score))
	}
	return out, nil
}

// Evict removes drivers from both presence keys and flags them as reaped.
func (s *Store) Evict(ctx context.Context, ids []types.ID) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = string(id)
	}
	pipe := s.redis.TxPipeline()
	pipe.ZRem(ctx, driverGeoKey, members...)
	pipe.ZRem(ctx, driverLastSeenKey, members...)
	pipe.SAdd(ctx, driverReapedKey, members...)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearReaped drops the reaped flag and reports whether it was set.
func (s *Store) ClearReaped(ctx context.Context, id types.ID) (bool, error) {
	n, err := s.redis.SRem(ctx, driverReapedKey, string(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
