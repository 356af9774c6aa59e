package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohammad-safakhou/casewatch/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Snapshot is a collection as read at one revision. Revision 0 means the collection has never
// been saved.
type Snapshot struct {
	Records  []models.Record
	Revision int64
}

// CollectionStore persists named record collections. SaveCollection replaces the whole collection
// atomically and fails with models.ErrConflict when the stored revision is not expectedRevision.
type CollectionStore interface {
	LoadCollection(ctx context.Context, name string) (Snapshot, error)
	SaveCollection(ctx context.Context, name string, records []models.Record, expectedRevision int64) (int64, error)
}

// CacheStore persists fingerprint cache entries. HitCacheEntry atomically increments the access
// count of an entry whose result was written at or after notBefore (zero means any age) and returns
// the updated entry. UpsertCacheEntry replaces result and timestamps but never the access count.
type CacheStore interface {
	GetCacheEntry(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error)
	HitCacheEntry(ctx context.Context, fingerprint string, notBefore time.Time) (models.CacheEntry, bool, error)
	UpsertCacheEntry(ctx context.Context, entry models.CacheEntry) error
}

// MutateFunc computes the next record set from the current one. Returning write=false leaves the
// stored collection untouched.
type MutateFunc func(current []models.Record) (next []models.Record, write bool, err error)

// DefaultUpdateAttempts bounds optimistic retries when concurrent writers race.
const DefaultUpdateAttempts = 3

var (
	metricsOnce     sync.Once
	conflictCounter otelmetric.Int64Counter
	saveCounter     otelmetric.Int64Counter
	metricsInitErr  error
)

func initStoreMetrics() {
	meter := otel.Meter("casewatch/store")
	var err error
	conflictCounter, err = meter.Int64Counter("collection_save_conflicts_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	saveCounter, err = meter.Int64Counter("collection_saves_total")
	if err != nil {
		metricsInitErr = err
	}
}

// Update runs a read-modify-write cycle on one collection: load the latest snapshot, apply fn and
// save against the loaded revision. A lost race reloads and retries up to attempts times. Any
// error leaves the stored collection as it was.
func Update(ctx context.Context, cs CollectionStore, name string, attempts int, fn MutateFunc) (bool, error) {
	metricsOnce.Do(initStoreMetrics)
	if attempts <= 0 {
		attempts = DefaultUpdateAttempts
	}
	attr := otelmetric.WithAttributes(attribute.String("collection", name))
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		snap, err := cs.LoadCollection(ctx, name)
		if err != nil {
			return false, fmt.Errorf("load %s: %w", name, err)
		}
		next, write, err := fn(snap.Records)
		if err != nil {
			return false, err
		}
		if !write {
			return false, nil
		}
		_, err = cs.SaveCollection(ctx, name, next, snap.Revision)
		if err == nil {
			if metricsInitErr == nil {
				saveCounter.Add(ctx, 1, attr)
			}
			return true, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return false, fmt.Errorf("save %s: %w", name, err)
		}
		if metricsInitErr == nil {
			conflictCounter.Add(ctx, 1, attr)
		}
		lastErr = err
	}
	return false, fmt.Errorf("save %s after %d attempts: %w", name, attempts, lastErr)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrPersistenceUnavailable, err)
}

func cloneRecords(in []models.Record) []models.Record {
	if in == nil {
		return nil
	}
	out := make([]models.Record, len(in))
	copy(out, in)
	for i := range out {
		if in[i].Fields.Tags != nil {
			out[i].Fields.Tags = append([]string(nil), in[i].Fields.Tags...)
		}
	}
	return out
}
