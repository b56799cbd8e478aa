package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Deduper remembers processed event ids.
type Deduper struct {
	rdb     *redis.Client
	service string
}

func NewDeduper(rdb *redis.Client, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service}
}

// MarkOnce records eventID and reports whether this is the first time it was seen.
func (d *Deduper) MarkOnce(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf(KeyDedup, d.service, eventID)
	return d.rdb.SetNX(ctx, key, "1", TTLDedup).Result()
}

// Forget drops a mark so a failed event is processed again on redelivery.
func (d *Deduper) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, eventID)).Err()
}

// TrackingCache keeps rendered tracking views for a short time. A nil cache is valid and
// never hits.
type TrackingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTrackingCache(rdb *redis.Client) *TrackingCache {
	return &TrackingCache{rdb: rdb, ttl: TTLTracking}
}

func (c *TrackingCache) Get(ctx context.Context, orderID string, out any) (bool, error) {
	if c == nil {
		return false, nil
	}
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyTracking, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *TrackingCache) Set(ctx context.Context, orderID string, v any) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyTracking, orderID), b, c.ttl).Err()
}

func (c *TrackingCache) Invalidate(ctx context.Context, orderID string) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, fmt.Sprintf(KeyTracking, orderID)).Err()
}

// release only deletes the lock when it still holds our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short leases so only one worker replica sweeps at a time.
type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker { return &Locker{rdb: rdb} }

func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf(KeyLock, name)
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// ctx may already be done at shutdown
		_ = release.Run(context.Background(), l.rdb, []string{key}, token).Err()
	}, true, nil
}
