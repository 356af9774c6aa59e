package feeds

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
	"github.com/mohammad-safakhou/casewatch/models"
)

// NewsAPI queries newsapi.org's everything endpoint.
type NewsAPI struct {
	cfg  config.NewsAPIConfig
	http *httpclient.Client
}

func NewNewsAPI(cfg config.NewsAPIConfig, hc *httpclient.Client) *NewsAPI {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://newsapi.org/v2/everything"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.Language == "" {
		cfg.Language = "jp"
	}
	return &NewsAPI{cfg: cfg, http: hc}
}

func (n *NewsAPI) Name() string { return n.cfg.Name }

func (n *NewsAPI) Fetch(ctx context.Context) ([]models.RawItem, error) {
	var resp struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	q := url.Values{
		"q":        {n.cfg.Query},
		"language": {n.cfg.Language},
		"sortBy":   {"publishedAt"},
		"pageSize": {fmt.Sprint(n.cfg.MaxResults)},
	}
	headers := map[string]string{"X-Api-Key": n.cfg.APIKey}
	if err := n.http.DoJSON(ctx, "GET", n.cfg.Endpoint+"?"+q.Encode(), headers, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("newsapi: %s", resp.Message)
	}
	items := make([]models.RawItem, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		var published *time.Time
		if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			published = &ts
		}
		items = append(items, models.RawItem{
			Title:         a.Title,
			Summary:       a.Description,
			Link:          a.URL,
			PublishedDate: formatDate(published),
			Source:        a.Source.Name,
		})
	}
	return items, nil
}
