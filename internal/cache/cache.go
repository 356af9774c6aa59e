// Package cache memoizes analysis results by query fingerprint and counts how often each one is
// served.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/casewatch/internal/helpers"
	"github.com/mohammad-safakhou/casewatch/internal/store"
	"github.com/mohammad-safakhou/casewatch/models"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	hitCounter     otelmetric.Int64Counter
	missCounter    otelmetric.Int64Counter
	errorCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initCacheMetrics() {
	meter := otel.Meter("casewatch/cache")
	var err error
	if hitCounter, err = meter.Int64Counter("cache_hits_total"); err != nil {
		metricsInitErr = err
		return
	}
	if missCounter, err = meter.Int64Counter("cache_misses_total"); err != nil {
		metricsInitErr = err
		return
	}
	errorCounter, metricsInitErr = meter.Int64Counter("cache_errors_total")
}

// FingerprintOf derives the cache key of a query. Case, surrounding whitespace and runs of
// internal whitespace do not change the result.
func FingerprintOf(subject, region string) string {
	norm := func(s string) string { return strings.ToLower(helpers.CollapseSpace(s)) }
	sum := sha256.Sum256([]byte(norm(subject) + "\x1f" + norm(region)))
	return hex.EncodeToString(sum[:])
}

// Cache is best-effort: a missing or failing backend turns lookups into misses and stores into
// no-ops.
type Cache struct {
	backend store.CacheStore
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger
}

// New wraps backend. backend may be nil. ttl 0 keeps entries forever.
func New(backend store.CacheStore, ttl time.Duration, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	metricsOnce.Do(initCacheMetrics)
	return &Cache{backend: backend, ttl: ttl, now: time.Now, logger: logger}
}

// Lookup returns the entry for fp and counts the access. Entries older than the TTL are misses
// and are not counted.
func (c *Cache) Lookup(ctx context.Context, fp string) (models.CacheEntry, bool) {
	if c == nil || c.backend == nil {
		return models.CacheEntry{}, false
	}
	var notBefore time.Time
	if c.ttl > 0 {
		notBefore = c.now().Add(-c.ttl)
	}
	entry, ok, err := c.backend.HitCacheEntry(ctx, fp, notBefore)
	if err != nil {
		c.logger.Printf("lookup %s: %v", short(fp), err)
		c.count(ctx, errorCounter)
		return models.CacheEntry{}, false
	}
	if !ok {
		c.count(ctx, missCounter)
		return models.CacheEntry{}, false
	}
	c.count(ctx, hitCounter)
	return entry, true
}

// Store records result for fp. An existing entry keeps its access count.
func (c *Cache) Store(ctx context.Context, subject, region, fp, result string) {
	if c == nil || c.backend == nil {
		return
	}
	err := c.backend.UpsertCacheEntry(ctx, models.CacheEntry{
		Fingerprint: fp,
		Query:       models.Query{Subject: strings.TrimSpace(subject), Region: strings.TrimSpace(region)},
		Result:      result,
	})
	if err != nil {
		c.logger.Printf("store %s: %v", short(fp), err)
		c.count(ctx, errorCounter)
	}
}

func (c *Cache) count(ctx context.Context, counter otelmetric.Int64Counter) {
	if metricsInitErr == nil && counter != nil {
		counter.Add(ctx, 1)
	}
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
