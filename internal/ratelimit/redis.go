package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// fixedWindow increments the key and starts its expiry on the first hit.
// It returns the count and the remaining TTL in milliseconds.
var fixedWindow = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {n, ttl}
`)

// Redis is a Limiter shared by every instance using the same Redis.
type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewRedis returns a limiter over rdb. Keys are namespaced with prefix.
func NewRedis(rdb goredis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "instructoria:ratelimit:"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// Dial connects to Redis and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string, p Policy) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	vals, err := fixedWindow.Run(ctx, r.rdb, []string{r.prefix + key}, p.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, vals)
	}
	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if ttl < 0 {
		ttl = p.Window
	}
	res := Result{
		Allowed:   count <= p.Limit,
		Remaining: max(p.Limit-count, 0),
		ResetAt:   time.Now().Add(ttl),
	}
	return res, nil
}

// Reset implements Limiter.
func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}
