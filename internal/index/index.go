// Package index offers read-side views over a collection: full-text search, tag frequencies and
// simple filters.
package index

import (
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/casewatch/models"
)

// Hit is one search result.
type Hit struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type document struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Tags    string `json:"tags"`
}

// Index is an in-memory full-text index over one collection snapshot.
type Index struct {
	bleve bleve.Index
}

// Build indexes title, summary and tags of records.
func Build(records []models.Record) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	batch := idx.NewBatch()
	for _, r := range records {
		doc := document{Title: r.Fields.Title, Summary: r.Fields.Summary, Tags: strings.Join(r.Fields.Tags, " ")}
		if err := batch.Index(strconv.FormatInt(r.ID, 10), doc); err != nil {
			_ = idx.Close()
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return &Index{bleve: idx}, nil
}

// Search returns up to k record ids ranked by score.
func (i *Index) Search(q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)
	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(res.Hits))
	for n, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Hit{ID: id, Score: h.Score, Rank: n + 1})
	}
	return out, nil
}

func (i *Index) Close() error { return i.bleve.Close() }
