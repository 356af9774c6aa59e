package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mohammad-safakhou/casewatch/models"
	"github.com/redis/go-redis/v9"
)

// RedisConn dials redis and verifies it answers PING.
func RedisConn(ctx context.Context, addr, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return client, unavailable("ping redis", err)
	}
	if pong != "PONG" {
		return client, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// RedisCache keeps one hash per fingerprint. Timestamps are unix milliseconds so the hit script
// can compare them.
type RedisCache struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "casewatch:cache:", now: time.Now}
}

// hitScript increments access_count only for an existing entry fresh enough for the caller.
var hitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local notBefore = tonumber(ARGV[1])
if notBefore > 0 then
  local resultAt = tonumber(redis.call('HGET', KEYS[1], 'result_at') or '0')
  if resultAt < notBefore then
    return false
  end
end
redis.call('HINCRBY', KEYS[1], 'access_count', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

func (c *RedisCache) key(fp string) string { return c.prefix + fp }

func (c *RedisCache) GetCacheEntry(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.key(fingerprint)).Result()
	if err != nil {
		return models.CacheEntry{}, false, unavailable("redis hgetall", err)
	}
	if len(fields) == 0 {
		return models.CacheEntry{}, false, nil
	}
	e, err := entryFromHash(fingerprint, fields)
	return e, err == nil, err
}

func (c *RedisCache) HitCacheEntry(ctx context.Context, fingerprint string, notBefore time.Time) (models.CacheEntry, bool, error) {
	var nb int64
	if !notBefore.IsZero() {
		nb = notBefore.UnixMilli()
	}
	res, err := hitScript.Run(ctx, c.client, []string{c.key(fingerprint)}, nb, c.now().UnixMilli()).Result()
	if errors.Is(err, redis.Nil) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, unavailable("redis hit", err)
	}
	pairs, ok := res.([]interface{})
	if !ok {
		return models.CacheEntry{}, false, fmt.Errorf("redis hit: unexpected reply %T", res)
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}
	e, err := entryFromHash(fingerprint, fields)
	return e, err == nil, err
}

// UpsertCacheEntry writes everything but access_count in one transaction; HSETNX seeds the
// counter for new entries only.
func (c *RedisCache) UpsertCacheEntry(ctx context.Context, e models.CacheEntry) error {
	key := c.key(e.Fingerprint)
	now := strconv.FormatInt(c.now().UnixMilli(), 10)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"subject", e.Query.Subject,
			"region", e.Query.Region,
			"result", e.Result,
			"updated_at", now,
			"result_at", now,
		)
		p.HSetNX(ctx, key, "access_count", 0)
		return nil
	})
	if err != nil {
		return unavailable("redis upsert", err)
	}
	return nil
}

func entryFromHash(fp string, h map[string]string) (models.CacheEntry, error) {
	e := models.CacheEntry{
		Fingerprint: fp,
		Query:       models.Query{Subject: h["subject"], Region: h["region"]},
		Result:      h["result"],
	}
	var err error
	if v := h["access_count"]; v != "" {
		if e.AccessCount, err = strconv.ParseInt(v, 10, 64); err != nil {
			return models.CacheEntry{}, fmt.Errorf("cache entry %s access_count: %w", fp, err)
		}
	}
	if e.UpdatedAt, err = parseMillis(h["updated_at"]); err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache entry %s updated_at: %w", fp, err)
	}
	if e.ResultAt, err = parseMillis(h["result_at"]); err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache entry %s result_at: %w", fp, err)
	}
	return e, nil
}

func parseMillis(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
