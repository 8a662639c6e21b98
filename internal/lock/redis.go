// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tractionsync:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process pointed at the same server.
type Redis struct {
	client *redis.Client
	held   tokens
}

// NewRedis creates a redis-backed Locker.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Acquire implements Locker with SET NX PX.
func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := newToken()
	ok, err := r.client.SetNX(ctx, redisKeyPrefix+name, token, ttl).Result()
	if err != nil {
		record(name, false, err)
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if ok {
		r.held.set(name, token)
	}
	record(name, ok, nil)
	return ok, nil
}

// Release implements Locker.
func (r *Redis) Release(ctx context.Context, name string) error {
	token, ok := r.held.get(name)
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{redisKeyPrefix + name}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	r.held.drop(name)
	return nil
}

// ForceRelease implements Locker.
func (r *Redis) ForceRelease(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+name).Err(); err != nil {
		return fmt.Errorf("reset lock %s: %w", name, err)
	}
	r.held.drop(name)
	return nil
}

// Inspect implements Locker.
func (r *Redis) Inspect(ctx context.Context, name string) (Info, error) {
	key := redisKeyPrefix + name
	holder, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("inspect lock %s: %w", name, err)
	}
	info := Info{Held: true, Holder: holder}
	if ttl, err := r.client.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
		info.ExpiresAt = time.Now().Add(ttl).UTC()
	}
	return info, nil
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
