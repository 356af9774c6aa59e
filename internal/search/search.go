// Package search gathers background context for an analysis from a web search API.
package search

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/helpers"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
	"golang.org/x/sync/errgroup"
)

// Result is one search hit. Text holds the extracted article body when enrichment ran.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Text    string `json:"text,omitempty"`
}

// Provider is a search backend. Errors are absorbed by Searcher.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Searcher is best-effort: any failure yields an empty result set.
type Searcher struct {
	provider  Provider
	http      *httpclient.Client
	enrichTop int
	maxChars  int
	logger    *log.Logger
}

// New builds the configured provider. Provider "none" yields a Searcher that always returns nothing.
func New(cfg config.SearchConfig, enrichTop int, logger *log.Logger) *Searcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	hc := httpclient.New(cfg.Timeout, 1, 300*time.Millisecond, 0)
	var p Provider
	switch cfg.Provider {
	case "brave":
		p = &Brave{apiKey: cfg.BraveAPIKey, endpoint: orDefault(cfg.Endpoint, braveEndpoint), http: hc}
	case "serper":
		p = &Serper{apiKey: cfg.SerperAPIKey, endpoint: orDefault(cfg.Endpoint, serperEndpoint), http: hc}
	}
	return NewSearcher(p, hc, enrichTop, logger)
}

func NewSearcher(p Provider, hc *httpclient.Client, enrichTop int, logger *log.Logger) *Searcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	if hc == nil {
		hc = httpclient.New(10*time.Second, 0, 0, 0)
	}
	return &Searcher{provider: p, http: hc, enrichTop: enrichTop, maxChars: 1200, logger: logger}
}

// Search returns up to limit hits for query; the first enrichTop hits get their page text.
func (s *Searcher) Search(ctx context.Context, query string, limit int) []Result {
	if s == nil || s.provider == nil || limit <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	results, err := s.provider.Search(ctx, query, limit)
	if err != nil {
		s.logger.Printf("search %q failed: %v", query, err)
		return nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	s.enrich(ctx, results)
	return results
}

// enrich fills Text for the top hits concurrently. Failures leave Text empty.
func (s *Searcher) enrich(ctx context.Context, results []Result) {
	n := s.enrichTop
	if n > len(results) {
		n = len(results)
	}
	if n <= 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			text, err := s.articleText(gctx, results[i].Link)
			if err != nil {
				s.logger.Printf("enrich %s: %v", results[i].Link, err)
				return nil
			}
			results[i].Text = text
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Searcher) articleText(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid link %q", link)
	}
	raw, err := s.http.Get(ctx, link, map[string]string{"Accept": "text/html"})
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(bytes.NewReader(raw), u)
	if err != nil {
		return "", err
	}
	return helpers.Truncate(helpers.CollapseSpace(article.TextContent), s.maxChars), nil
}

// FormatContext renders hits as the background block handed to the analysis prompt.
func FormatContext(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, r.Title, r.Link)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "%s\n", r.Snippet)
		}
		if r.Text != "" {
			fmt.Fprintf(&b, "%s\n", r.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
