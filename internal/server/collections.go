package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/casewatch/internal/feeds"
	"github.com/mohammad-safakhou/casewatch/internal/index"
	"github.com/mohammad-safakhou/casewatch/internal/ingest"
	"github.com/mohammad-safakhou/casewatch/internal/store"
	"github.com/mohammad-safakhou/casewatch/models"
)

type recordsResponse struct {
	Collection string          `json:"collection"`
	Revision   int64           `json:"revision"`
	Count      int             `json:"count"`
	Records    []models.Record `json:"records"`
}

func (s *Server) snapshot(c echo.Context) (string, store.Snapshot, error) {
	name := c.Param("name")
	known := false
	for _, n := range s.pipeline.Collections() {
		known = known || n == name
	}
	if !known {
		return name, store.Snapshot{}, echo.NewHTTPError(http.StatusNotFound, "unknown collection")
	}
	snap, err := s.collections.LoadCollection(c.Request().Context(), name)
	return name, snap, err
}

func (s *Server) listRecords(c echo.Context) error {
	name, snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	since := c.QueryParam("since")
	if since != "" {
		if _, err := time.Parse(feeds.DateLayout, since); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be YYYY-MM-DD")
		}
	}
	records := index.Filter(snap.Records, c.QueryParam("tag"), since)
	return c.JSON(http.StatusOK, recordsResponse{Collection: name, Revision: snap.Revision, Count: len(records), Records: records})
}

func (s *Server) tagCounts(c echo.Context) error {
	_, snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	minCount := index.DefaultMinTagCount
	if v := c.QueryParam("min"); v != "" {
		if minCount, err = strconv.Atoi(v); err != nil || minCount < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "min must be a non-negative integer")
		}
	}
	return c.JSON(http.StatusOK, index.TagCounts(snap.Records, minCount))
}

func (s *Server) searchRecords(c echo.Context) error {
	name, snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	k := 10
	if v := c.QueryParam("k"); v != "" {
		if k, err = strconv.Atoi(v); err != nil || k <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
	}
	hits, err := s.indexes.search(name, snap, q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"hits":    hits,
		"records": index.ByIDs(snap.Records, hits),
	})
}

func (s *Server) runIngest(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	reports, err := s.pipeline.Run(ctx, c.QueryParam("collection"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string][]ingest.RunReport{"reports": reports})
}

// indexCache keeps one full-text index per collection, rebuilt when the revision moves. Searches
// run under the lock so a rebuild never closes an index in use.
type indexCache struct {
	mu      sync.Mutex
	entries map[string]indexEntry
}

type indexEntry struct {
	revision int64
	idx      *index.Index
}

func newIndexCache() *indexCache { return &indexCache{entries: make(map[string]indexEntry)} }

func (ic *indexCache) search(name string, snap store.Snapshot, q string, k int) ([]index.Hit, error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	e, ok := ic.entries[name]
	if !ok || e.revision != snap.Revision {
		idx, err := index.Build(snap.Records)
		if err != nil {
			return nil, err
		}
		if ok {
			_ = e.idx.Close()
		}
		e = indexEntry{revision: snap.Revision, idx: idx}
		ic.entries[name] = e
	}
	return e.idx.Search(q, k)
}
