package feeds

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
	"github.com/mohammad-safakhou/casewatch/models"
)

// RSS reads RSS, Atom or RDF feeds.
type RSS struct {
	cfg  config.RSSFeedConfig
	http *httpclient.Client
}

func NewRSS(cfg config.RSSFeedConfig, hc *httpclient.Client) *RSS {
	return &RSS{cfg: cfg, http: hc}
}

func (r *RSS) Name() string { return r.cfg.Name }

func (r *RSS) Fetch(ctx context.Context) ([]models.RawItem, error) {
	raw, err := r.http.Get(ctx, r.cfg.URL, map[string]string{"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml"})
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", r.cfg.Name, err)
	}
	items := make([]models.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		summary := it.Description
		if summary == "" {
			summary = it.Content
		}
		items = append(items, models.RawItem{
			Title:         it.Title,
			Summary:       summary,
			Link:          it.Link,
			PublishedDate: formatDate(it.PublishedParsed, it.UpdatedParsed),
			Source:        r.cfg.Source,
		})
	}
	return items, nil
}
