package search

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mohammad-safakhou/casewatch/internal/helpers"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
)

const (
	braveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	serperEndpoint = "https://google.serper.dev/search"
)

// Brave uses the Brave Search web endpoint.
type Brave struct {
	apiKey   string
	endpoint string
	http     *httpclient.Client
}

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	q := url.Values{"q": {query}, "count": {fmt.Sprint(limit)}, "search_lang": {"jp"}}
	headers := map[string]string{"X-Subscription-Token": b.apiKey, "Accept": "application/json"}
	if err := b.http.DoJSON(ctx, "GET", b.endpoint+"?"+q.Encode(), headers, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		out = append(out, Result{Title: helpers.PlainText(r.Title), Link: r.URL, Snippet: helpers.PlainText(r.Description)})
	}
	return out, nil
}

// Serper uses serper.dev's Google results.
type Serper struct {
	apiKey   string
	endpoint string
	http     *httpclient.Client
}

func (s *Serper) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	var resp struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	body := map[string]any{"q": query, "num": limit, "gl": "jp", "hl": "ja"}
	if err := s.http.DoJSON(ctx, "POST", s.endpoint, map[string]string{"X-API-KEY": s.apiKey}, body, &resp); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		out = append(out, Result{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}
