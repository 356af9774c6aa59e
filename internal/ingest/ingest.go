// Package ingest runs the scheduled collection pipeline: fetch, filter, merge, persist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/feeds"
	"github.com/mohammad-safakhou/casewatch/internal/filter"
	"github.com/mohammad-safakhou/casewatch/internal/helpers"
	"github.com/mohammad-safakhou/casewatch/internal/merger"
	"github.com/mohammad-safakhou/casewatch/internal/store"
	"github.com/mohammad-safakhou/casewatch/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

const (
	titleRunes   = 50
	summaryRunes = 150
)

var (
	// ErrRunInProgress is returned when another run holds the lock.
	ErrRunInProgress = errors.New("ingestion run already in progress")
	// ErrUnknownCollection is returned for a collection name that is not configured.
	ErrUnknownCollection = errors.New("unknown collection")
)

var (
	metricsOnce      sync.Once
	addedCounter     otelmetric.Int64Counter
	duplicateCounter otelmetric.Int64Counter
	malformedCounter otelmetric.Int64Counter
	metricsInitErr   error
)

func initIngestMetrics() {
	meter := otel.Meter("casewatch/ingest")
	var err error
	if addedCounter, err = meter.Int64Counter("ingest_records_added_total"); err != nil {
		metricsInitErr = err
		return
	}
	if duplicateCounter, err = meter.Int64Counter("ingest_records_duplicate_total"); err != nil {
		metricsInitErr = err
		return
	}
	malformedCounter, metricsInitErr = meter.Int64Counter("ingest_records_malformed_total")
}

// Fetcher fetches named sources. feeds.Registry implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, names []string) []feeds.FetchResult
}

// RunReport summarizes one collection within a run.
type RunReport struct {
	RunID      string `json:"run_id"`
	Collection string `json:"collection"`
	Fetched    int    `json:"fetched"`
	Relevant   int    `json:"relevant"`
	Added      int    `json:"added"`
	Duplicates int    `json:"duplicates"`
	Malformed  int    `json:"malformed"`
	Written    bool   `json:"written"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// Pipeline is safe for concurrent use; runs are serialized by its Locker.
type Pipeline struct {
	fetcher      Fetcher
	filter       *filter.Filter
	merger       *merger.Merger
	store        store.CollectionStore
	lock         Locker
	collections  []config.CollectionConfig
	canonicalize bool
	attempts     int
	now          func() time.Time
	logger       *log.Logger
}

// New builds a pipeline. lock may be nil for an in-process mutex.
func New(cfg config.IngestConfig, fetcher Fetcher, f *filter.Filter, cs store.CollectionStore, lock Locker, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	if lock == nil {
		lock = &MutexLock{}
	}
	metricsOnce.Do(initIngestMetrics)
	return &Pipeline{
		fetcher:      fetcher,
		filter:       f,
		merger:       merger.New(logger),
		store:        cs,
		lock:         lock,
		collections:  cfg.Collections,
		canonicalize: cfg.CanonicalizeLinks,
		attempts:     cfg.MaxAttempts,
		now:          time.Now,
		logger:       logger,
	}
}

// Collections lists the configured collection names.
func (p *Pipeline) Collections() []string {
	out := make([]string, 0, len(p.collections))
	for _, c := range p.collections {
		out = append(out, c.Name)
	}
	return out
}

// Run ingests every collection, or only the named one when name is non-empty. A failing
// collection is reported and does not stop the others.
func (p *Pipeline) Run(ctx context.Context, name string) ([]RunReport, error) {
	targets := p.collections
	if name != "" {
		targets = nil
		for _, c := range p.collections {
			if c.Name == name {
				targets = append(targets, c)
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
		}
	}

	release, ok, err := p.lock.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer release()

	runID := uuid.NewString()
	reports := make([]RunReport, 0, len(targets))
	for _, col := range targets {
		rep := p.runCollection(ctx, runID, col)
		if rep.Err != nil {
			rep.Error = rep.Err.Error()
			p.logger.Printf("run %s collection %s failed: %v", runID, col.Name, rep.Err)
		} else {
			p.logger.Printf("run %s collection %s: fetched=%d relevant=%d added=%d duplicates=%d malformed=%d",
				runID, col.Name, rep.Fetched, rep.Relevant, rep.Added, rep.Duplicates, rep.Malformed)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (p *Pipeline) runCollection(ctx context.Context, runID string, col config.CollectionConfig) RunReport {
	rep := RunReport{RunID: runID, Collection: col.Name}
	var candidates []models.Candidate
	for _, res := range p.fetcher.FetchAll(ctx, col.Sources) {
		if res.Err != nil {
			continue
		}
		rep.Fetched += len(res.Items)
		for _, it := range res.Items {
			cand, ok := p.candidate(it, col.Filter)
			if !ok {
				continue
			}
			candidates = append(candidates, cand)
		}
	}
	rep.Relevant = len(candidates)
	if len(candidates) == 0 {
		return rep
	}

	var result merger.Result
	written, err := store.Update(ctx, p.store, col.Name, p.attempts, func(current []models.Record) ([]models.Record, bool, error) {
		result = p.merger.Merge(current, candidates, p.now().UTC())
		return result.Updated, result.Added > 0, nil
	})
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Added, rep.Duplicates, rep.Malformed, rep.Written = result.Added, result.Duplicates, result.Malformed, written
	if metricsInitErr == nil {
		attr := otelmetric.WithAttributes(attribute.String("collection", col.Name))
		addedCounter.Add(ctx, int64(result.Added), attr)
		duplicateCounter.Add(ctx, int64(result.Duplicates), attr)
		malformedCounter.Add(ctx, int64(result.Malformed), attr)
	}
	return rep
}

// candidate turns a normalized item into a merge candidate. Relevance and tags look at the full
// text; only the stored fields are truncated.
func (p *Pipeline) candidate(it models.RawItem, filtered bool) (models.Candidate, bool) {
	text := it.Title + " " + it.Summary
	if filtered && !p.filter.Classify(text) {
		return models.Candidate{}, false
	}
	link := it.Link
	if p.canonicalize {
		link = helpers.LinkOrCanonical(link)
	}
	summary := helpers.Truncate(it.Summary, summaryRunes)
	if summary == "" {
		summary = it.Title
	}
	return models.Candidate{
		NaturalKey: link,
		Fields: models.Fields{
			Date:      it.PublishedDate,
			Title:     helpers.Truncate(it.Title, titleRunes),
			Tags:      filter.MergeTags(p.filter.ExtractTags(text), it.Tags),
			Summary:   summary,
			Source:    it.Source,
			Court:     it.Court,
			Location:  it.Location,
			Thumbnail: it.Thumbnail,
		},
	}, true
}
