package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/casewatch/models"
)

// Postgres stores collections as one jsonb snapshot row per collection and cache entries as rows
// of cache_entries. Schema lives in migrations/.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens a pool for dsn. The returned store is usable even when the ping fails; every
// operation then reports models.ErrPersistenceUnavailable until the database is reachable.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	s := &Postgres{DB: db}
	if err := db.PingContext(ctx); err != nil {
		return s, unavailable("ping postgres", err)
	}
	return s, nil
}

func (s *Postgres) Close() error { return s.DB.Close() }

func (s *Postgres) LoadCollection(ctx context.Context, name string) (Snapshot, error) {
	var (
		raw []byte
		rev int64
	)
	err := s.DB.QueryRowContext(ctx, `SELECT records, revision FROM collection_snapshots WHERE name = $1`, name).Scan(&raw, &rev)
	if err == sql.ErrNoRows {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, unavailable("load collection", err)
	}
	var records []models.Record
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return Snapshot{}, fmt.Errorf("decode collection %s: %w", name, err)
		}
	}
	return Snapshot{Records: records, Revision: rev}, nil
}

func (s *Postgres) SaveCollection(ctx context.Context, name string, records []models.Record, expectedRevision int64) (int64, error) {
	if records == nil {
		records = []models.Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("encode collection %s: %w", name, err)
	}
	var rev int64
	if expectedRevision == 0 {
		err = s.DB.QueryRowContext(ctx, `
INSERT INTO collection_snapshots (name, revision, records, updated_at)
VALUES ($1, 1, $2, NOW())
ON CONFLICT (name) DO NOTHING
RETURNING revision`, name, payload).Scan(&rev)
	} else {
		err = s.DB.QueryRowContext(ctx, `
UPDATE collection_snapshots
SET records = $2, revision = revision + 1, updated_at = NOW()
WHERE name = $1 AND revision = $3
RETURNING revision`, name, payload, expectedRevision).Scan(&rev)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrConflict
	}
	if err != nil {
		return 0, unavailable("save collection", err)
	}
	return rev, nil
}

func (s *Postgres) GetCacheEntry(ctx context.Context, fingerprint string) (models.CacheEntry, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT fingerprint, subject, region, result, access_count, updated_at, result_at
FROM cache_entries
WHERE fingerprint = $1`, fingerprint)
	return scanCacheEntry(row)
}

func (s *Postgres) HitCacheEntry(ctx context.Context, fingerprint string, notBefore time.Time) (models.CacheEntry, bool, error) {
	var nb interface{}
	if !notBefore.IsZero() {
		nb = notBefore.UTC()
	}
	row := s.DB.QueryRowContext(ctx, `
UPDATE cache_entries
SET access_count = access_count + 1, updated_at = NOW()
WHERE fingerprint = $1 AND ($2::timestamptz IS NULL OR result_at >= $2::timestamptz)
RETURNING fingerprint, subject, region, result, access_count, updated_at, result_at`, fingerprint, nb)
	return scanCacheEntry(row)
}

func (s *Postgres) UpsertCacheEntry(ctx context.Context, e models.CacheEntry) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO cache_entries (fingerprint, subject, region, result, access_count, updated_at, result_at)
VALUES ($1,$2,$3,$4,0,NOW(),NOW())
ON CONFLICT (fingerprint) DO UPDATE SET
  subject    = EXCLUDED.subject,
  region     = EXCLUDED.region,
  result     = EXCLUDED.result,
  updated_at = NOW(),
  result_at  = NOW();
`, e.Fingerprint, e.Query.Subject, e.Query.Region, e.Result)
	if err != nil {
		return unavailable("upsert cache entry", err)
	}
	return nil
}

func scanCacheEntry(row *sql.Row) (models.CacheEntry, bool, error) {
	var e models.CacheEntry
	err := row.Scan(&e.Fingerprint, &e.Query.Subject, &e.Query.Region, &e.Result, &e.AccessCount, &e.UpdatedAt, &e.ResultAt)
	if err == sql.ErrNoRows {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, unavailable("read cache entry", err)
	}
	return e, true, nil
}
