// Package cache is a short-TTL cache for read-heavy derived data: stats,
// room snapshots and active-session lookups. It is purely a performance
// optimization. A missing entry never means missing data; callers always fall
// through to the database.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/xerrors"
)

// Default TTLs per key family. Presence-adjacent keys expire fast because a
// missed invalidation must not pin stale state for long.
const (
	StatsTTL         = 5 * time.Minute
	RoomTTL          = 5 * time.Minute
	UserRoomsTTL     = 5 * time.Minute
	ActiveSessionTTL = 30 * time.Second
	RoomActiveTTL    = 10 * time.Second
)

// Cache stores JSON-encoded values with a TTL.
type Cache interface {
	// Get unmarshals the cached value into value and reports whether the key
	// was present.
	Get(ctx context.Context, key string, value interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

func UserStatsKey(userID uuid.UUID) string {
	return "stats:" + userID.String()
}

func ActiveSessionKey(userID uuid.UUID) string {
	return "active:" + userID.String()
}

func UserRoomsKey(userID uuid.UUID) string {
	return "rooms:user:" + userID.String()
}

func RoomKey(code string) string {
	return "room:" + code
}

func RoomActiveKey(code string) string {
	return "room:" + code + ":active"
}

type redisCache struct {
	client *redis.Client
}

// NewRedis connects to the Redis instance at the given URL and returns a
// Cache backed by it.
func NewRedis(url string) (Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, xerrors.Errorf("parse redis url: %w", err)
	}
	return &redisCache{client: redis.NewClient(opts)}, nil
}

func (c *redisCache) Get(ctx context.Context, key string, value interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if xerrors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("redis get %q: %w", key, err)
	}
	err = json.Unmarshal(raw, value)
	if err != nil {
		return false, xerrors.Errorf("unmarshal cached %q: %w", key, err)
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return xerrors.Errorf("marshal %q: %w", key, err)
	}
	err = c.client.Set(ctx, key, raw, ttl).Err()
	if err != nil {
		return xerrors.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := c.client.Del(ctx, keys...).Err()
	if err != nil {
		return xerrors.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

type noopCache struct{}

// NewNoop returns a Cache that stores nothing. It is used when no Redis is
// configured; reads always miss and fall through to the database.
func NewNoop() Cache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string, interface{}) (bool, error) {
	return false, nil
}

func (noopCache) Set(context.Context, string, interface{}, time.Duration) error {
	return nil
}

func (noopCache) Delete(context.Context, ...string) error {
	return nil
}

func (noopCache) Close() error {
	return nil
}
