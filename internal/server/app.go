package server

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/analysis"
	"github.com/mohammad-safakhou/casewatch/internal/cache"
	"github.com/mohammad-safakhou/casewatch/internal/feeds"
	"github.com/mohammad-safakhou/casewatch/internal/filter"
	"github.com/mohammad-safakhou/casewatch/internal/ingest"
	"github.com/mohammad-safakhou/casewatch/internal/quota"
	"github.com/mohammad-safakhou/casewatch/internal/query"
	"github.com/mohammad-safakhou/casewatch/internal/search"
	"github.com/mohammad-safakhou/casewatch/internal/store"
)

// App is the fully wired process: storage, collaborators, the ingestion pipeline and the query
// path.
type App struct {
	Config   *config.Config
	Backends *store.Backends
	Analysis *analysis.Service
	Pipeline *ingest.Pipeline
	Query    *query.Service
	Sessions *quota.Registry
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	backends, err := store.Open(ctx, cfg.Storage, log.New(log.Writer(), "[STORE] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}
	an, err := analysis.New(cfg.Analysis, log.New(log.Writer(), "[ANALYSIS] ", log.LstdFlags))
	if err != nil {
		backends.Close()
		return nil, err
	}
	var gen feeds.Generator
	if an.Enabled() {
		gen = an
	}
	registry, err := feeds.NewRegistry(cfg.Feeds, gen, log.New(log.Writer(), "[FEEDS] ", log.LstdFlags))
	if err != nil {
		backends.Close()
		return nil, err
	}
	f, err := filter.New(cfg.Filter)
	if err != nil {
		backends.Close()
		return nil, fmt.Errorf("filter: %w", err)
	}

	var lock ingest.Locker
	if backends.Redis != nil {
		lock = ingest.NewRedisLock(backends.Redis, cfg.Ingest.LockTTL)
	} else {
		fl, err := ingest.NewFileLock(cfg.Ingest.LockPath(cfg.Storage.File.DataDir))
		if err != nil {
			backends.Close()
			return nil, err
		}
		lock = fl
	}
	pipeline := ingest.New(cfg.Ingest, registry, f, backends.Collections, lock, log.New(log.Writer(), "[INGEST] ", log.LstdFlags))

	searcher := search.New(cfg.Search, cfg.Query.EnrichTop, log.New(log.Writer(), "[SEARCH] ", log.LstdFlags))
	c := cache.New(backends.Cache, cfg.Cache.TTL, log.New(log.Writer(), "[CACHE] ", log.LstdFlags))
	q := query.New(c, an, searcher, query.Options{
		AnalysisTimeout: cfg.Query.AnalysisTimeout,
		SearchLimit:     cfg.Query.SearchLimit,
	}, log.New(log.Writer(), "[QUERY] ", log.LstdFlags))

	return &App{
		Config:   cfg,
		Backends: backends,
		Analysis: an,
		Pipeline: pipeline,
		Query:    q,
		Sessions: quota.NewRegistry(cfg.Quota.Limit, cfg.Quota.SessionTTL),
	}, nil
}

// Close releases database connections.
func (a *App) Close() {
	if a != nil && a.Backends != nil {
		a.Backends.Close()
	}
}
