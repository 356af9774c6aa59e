package cache

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mohammad-safakhou/casewatch/internal/store"
	"github.com/mohammad-safakhou/casewatch/models"
	"github.com/redis/go-redis/v9"
)

var quiet = log.New(io.Discard, "", 0)

func TestFingerprintStable(t *testing.T) {
	cases := []struct {
		name         string
		subject, reg string
		other, oreg  string
		expectEqual  bool
	}{
		{"case and padding", "Oak School", "Tokyo", "oak school", " Tokyo ", true},
		{"inner whitespace", "Oak  School", "Tokyo", "Oak School", "tokyo", true},
		{"different region", "Oak School", "Tokyo", "Oak School", "Osaka", false},
		{"field boundary", "Oak", "School Tokyo", "Oak School", "Tokyo", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, b := FingerprintOf(tc.subject, tc.reg), FingerprintOf(tc.other, tc.oreg)
			if (a == b) != tc.expectEqual {
				t.Fatalf("equal=%v, want %v", a == b, tc.expectEqual)
			}
			if len(a) != 64 {
				t.Fatalf("expected hex sha256, got %q", a)
			}
		})
	}
}

func TestLookupCountsEveryHit(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemory(), 0, quiet)
	fp := FingerprintOf("Oak School", "Tokyo")

	if _, ok := c.Lookup(ctx, fp); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Store(ctx, "Oak School", "Tokyo", fp, "R")

	const n = 5
	var last models.CacheEntry
	for i := 0; i < n; i++ {
		e, ok := c.Lookup(ctx, fp)
		if !ok || e.Result != "R" {
			t.Fatalf("expected hit with result, got %+v ok=%v", e, ok)
		}
		last = e
	}
	if last.AccessCount != n {
		t.Fatalf("expected access count %d, got %d", n, last.AccessCount)
	}

	c.Store(ctx, "Oak School", "Tokyo", fp, "R2")
	e, _ := c.Lookup(ctx, fp)
	if e.Result != "R2" || e.AccessCount != n+1 {
		t.Fatalf("store must keep access count: %+v", e)
	}
}

func TestConcurrentLookupsAreAtomic(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemory(), 0, quiet)
	fp := FingerprintOf("a", "b")
	c.Store(ctx, "a", "b", fp, "R")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Lookup(ctx, fp)
		}()
	}
	wg.Wait()
	e, _ := c.Lookup(ctx, fp)
	if e.AccessCount != 51 {
		t.Fatalf("expected 51 counted hits, got %d", e.AccessCount)
	}
}

func TestStoresInterleavedWithLookupsKeepCount(t *testing.T) {
	backends := map[string]func(t *testing.T) store.CacheStore{
		"memory": func(t *testing.T) store.CacheStore { return store.NewMemory() },
		"redis": func(t *testing.T) store.CacheStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return store.NewRedisCache(client)
		},
	}
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := New(mk(t), 0, quiet)
			fp := FingerprintOf("Oak School", "Tokyo")
			c.Store(ctx, "Oak School", "Tokyo", fp, "R0")

			const readers, perReader, writers = 8, 10, 4
			var wg sync.WaitGroup
			errs := make(chan string, readers*perReader)
			for r := 0; r < readers; r++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					var prev int64
					for i := 0; i < perReader; i++ {
						e, ok := c.Lookup(ctx, fp)
						if !ok {
							errs <- "unexpected miss"
							return
						}
						if e.AccessCount <= prev {
							errs <- "access count went backwards"
							return
						}
						prev = e.AccessCount
					}
				}()
			}
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perReader; i++ {
						c.Store(ctx, "Oak School", "Tokyo", fp, "R"+string(rune('a'+w)))
					}
				}(w)
			}
			wg.Wait()
			close(errs)
			for msg := range errs {
				t.Fatal(msg)
			}

			e, ok := c.Lookup(ctx, fp)
			if !ok || e.AccessCount != readers*perReader+1 {
				t.Fatalf("expected %d counted hits, got %+v ok=%v", readers*perReader+1, e, ok)
			}
		})
	}
}

func TestTTLTreatsStaleEntriesAsMisses(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	c := New(mem, time.Hour, quiet)
	fp := FingerprintOf("a", "")
	c.Store(ctx, "a", "", fp, "R")

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := c.Lookup(ctx, fp); ok {
		t.Fatalf("expected stale entry to miss")
	}
	e, ok, _ := mem.GetCacheEntry(ctx, fp)
	if !ok || e.AccessCount != 0 {
		t.Fatalf("stale miss must not count: %+v", e)
	}
}

type brokenBackend struct{}

func (brokenBackend) GetCacheEntry(ctx context.Context, fp string) (models.CacheEntry, bool, error) {
	return models.CacheEntry{}, false, models.ErrPersistenceUnavailable
}
func (brokenBackend) HitCacheEntry(ctx context.Context, fp string, nb time.Time) (models.CacheEntry, bool, error) {
	return models.CacheEntry{}, false, models.ErrPersistenceUnavailable
}
func (brokenBackend) UpsertCacheEntry(ctx context.Context, e models.CacheEntry) error {
	return errors.New("down")
}

func TestBestEffortBackends(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]*Cache{
		"nil backend": New(nil, 0, quiet),
		"failing":     New(brokenBackend{}, 0, quiet),
		"nil cache":   nil,
	} {
		c.Store(ctx, "a", "b", "fp", "R")
		if _, ok := c.Lookup(ctx, "fp"); ok {
			t.Fatalf("%s: expected miss", name)
		}
	}
}
