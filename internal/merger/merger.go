// Package merger reconciles a batch of candidates against an existing collection.
package merger

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/casewatch/models"
)

// Result describes one merge.
type Result struct {
	Updated    []models.Record
	Added      int
	Duplicates int
	Malformed  int
}

// Merger appends unseen candidates with fresh ids. It holds no state between calls.
type Merger struct {
	logger *log.Logger
}

// New returns a Merger that logs per-item warnings to logger (or the default logger).
func New(logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.Default()
	}
	return &Merger{logger: logger}
}

// Merge returns existing followed by every candidate whose natural key is not already present.
// Accepted candidates get id = running max + 1 and collectedAt = now. Malformed candidates are
// skipped with a warning. existing is never modified.
func (m *Merger) Merge(existing []models.Record, candidates []models.Candidate, now time.Time) Result {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	var maxID int64
	for _, rec := range existing {
		seen[rec.NaturalKey] = struct{}{}
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}

	updated := make([]models.Record, len(existing), len(existing)+len(candidates))
	copy(updated, existing)
	res := Result{}

	for i, cand := range candidates {
		cand.NaturalKey = strings.TrimSpace(cand.NaturalKey)
		if err := cand.Validate(); err != nil {
			if errors.Is(err, models.ErrMalformedCandidate) {
				res.Malformed++
				m.logger.Printf("skip candidate %d: %v", i, err)
			}
			continue
		}
		if _, dup := seen[cand.NaturalKey]; dup {
			res.Duplicates++
			continue
		}
		seen[cand.NaturalKey] = struct{}{}
		maxID++
		updated = append(updated, models.Record{
			ID:          maxID,
			NaturalKey:  cand.NaturalKey,
			Fields:      cand.Fields,
			CollectedAt: now,
		})
		res.Added++
	}
	res.Updated = updated
	return res
}
