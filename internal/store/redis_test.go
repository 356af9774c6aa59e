package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohammad-safakhou/casewatch/models"
	"github.com/redis/go-redis/v9"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCacheStoreThenHits(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)

	if _, ok, err := c.HitCacheEntry(ctx, "fp", time.Time{}); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}
	entry := models.CacheEntry{Fingerprint: "fp", Query: models.Query{Subject: "oak school", Region: "tokyo"}, Result: "r1"}
	if err := c.UpsertCacheEntry(ctx, entry); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 1; i <= 3; i++ {
		e, ok, err := c.HitCacheEntry(ctx, "fp", time.Time{})
		if err != nil || !ok {
			t.Fatalf("hit %d: ok=%v err=%v", i, ok, err)
		}
		if e.AccessCount != int64(i) || e.Result != "r1" || e.Query.Region != "tokyo" {
			t.Fatalf("hit %d: unexpected entry %+v", i, e)
		}
	}

	entry.Result = "r2"
	entry.AccessCount = 0
	if err := c.UpsertCacheEntry(ctx, entry); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, ok, err := c.GetCacheEntry(ctx, "fp")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.AccessCount != 3 || got.Result != "r2" {
		t.Fatalf("store must replace result but keep count: %+v", got)
	}
}

func TestRedisCacheConcurrentHits(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)
	if err := c.UpsertCacheEntry(ctx, models.CacheEntry{Fingerprint: "fp", Result: "r"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.HitCacheEntry(ctx, "fp", time.Time{})
			_ = c.UpsertCacheEntry(ctx, models.CacheEntry{Fingerprint: "fp", Result: "r"})
		}()
	}
	wg.Wait()
	got, _, _ := c.GetCacheEntry(ctx, "fp")
	if got.AccessCount != 20 {
		t.Fatalf("expected 20 hits, got %d", got.AccessCount)
	}
}

func TestRedisCacheNotBefore(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)
	stored := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return stored }
	_ = c.UpsertCacheEntry(ctx, models.CacheEntry{Fingerprint: "fp", Result: "r"})

	if _, ok, err := c.HitCacheEntry(ctx, "fp", stored.Add(time.Minute)); err != nil || ok {
		t.Fatalf("expected stale entry to miss, ok=%v err=%v", ok, err)
	}
	got, _, _ := c.GetCacheEntry(ctx, "fp")
	if got.AccessCount != 0 {
		t.Fatalf("stale lookup must not count, got %d", got.AccessCount)
	}
	if _, ok, _ := c.HitCacheEntry(ctx, "fp", stored); !ok {
		t.Fatalf("expected entry written at notBefore to hit")
	}
}

func TestRedisCacheUnavailable(t *testing.T) {
	c, mr := newRedisCache(t)
	mr.Close()
	if _, _, err := c.HitCacheEntry(context.Background(), "fp", time.Time{}); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
