// README: Dispatch record store backed by Redis hashes and sets.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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

// RecordDispatch bumps the broadcast count and adds the notified drivers for an order.
func (s *Store) RecordDispatch(ctx context.Context, orderID types.ID, driverIDs []types.ID, at time.Time) error {
	key := dispatchKey(orderID)
	stamp := at.UTC().Format(time.RFC3339Nano)

	pipe := s.redis.TxPipeline()
	pipe.HSetNX(ctx, key, "first_at", stamp)
	pipe.HSet(ctx, key, "last_at", stamp)
	pipe.HIncrBy(ctx, key, "count", 1)
	pipe.Expire(ctx, key, keyTTL)
	if len(driverIDs) > 0 {
		members := make([]interface{}, len(driverIDs))
		for i, d := range driverIDs {
			members[i] = string(d)
		}
		pipe.SAdd(ctx, notifiedKey(orderID), members...)
		pipe.Expire(ctx, notifiedKey(orderID), keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetDispatch returns the record for an order, and whether it has been dispatched.
func (s *Store) GetDispatch(ctx context.Context, orderID types.ID) (Record, bool, error) {
	pipe := s.redis.Pipeline()
	fields := pipe.HGetAll(ctx, dispatchKey(orderID))
	notified := pipe.SMembers(ctx, notifiedKey(orderID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, false, err
	}

	vals := fields.Val()
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	rec := Record{OrderID: orderID}
	var err error
	if rec.FirstDispatchAt, err = time.Parse(time.RFC3339Nano, vals["first_at"]); err != nil {
		return Record{}, false, fmt.Errorf("parsing first_at for %s: %w", orderID, err)
	}
	if rec.LastDispatchAt, err = time.Parse(time.RFC3339Nano, vals["last_at"]); err != nil {
		return Record{}, false, fmt.Errorf("parsing last_at for %s: %w", orderID, err)
	}
	if rec.Broadcasts, err = strconv.Atoi(vals["count"]); err != nil {
		return Record{}, false, fmt.Errorf("parsing count for %s: %w", orderID, err)
	}
	for _, m := range notified.Val() {
		rec.NotifiedDrivers = append(rec.NotifiedDrivers, types.ID(m))
	}
	return rec, true, nil
}

// Forget drops the bookkeeping once an order leaves the search state.
func (s *Store) Forget(ctx context.Context, orderID types.ID) error {
	return s.redis.Del(ctx, dispatchKey(orderID), notifiedKey(orderID)).Err()
}

func dispatchKey(orderID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(orderID))
}

func notifiedKey(orderID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(orderID))
}
