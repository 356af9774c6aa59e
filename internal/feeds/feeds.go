// Package feeds fetches raw items from the configured producers.
package feeds

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/helpers"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
	"github.com/mohammad-safakhou/casewatch/models"
	"golang.org/x/sync/errgroup"
)

// DateLayout is the day-precision date written to records.
const DateLayout = "2006-01-02"

// Source produces raw items.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.RawItem, error)
}

// Generator is the slice of the analysis collaborator used by generated feeds.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Registry holds every configured source by name.
type Registry struct {
	sources map[string]Source
	policy  config.SourcePolicyConfig
	logger  *log.Logger
}

// NewRegistry builds the sources declared in cfg. gen may be nil when no generated feeds are
// configured.
func NewRegistry(cfg config.FeedsConfig, gen Generator, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[FEEDS] ", log.LstdFlags)
	}
	hc := httpclient.New(cfg.HTTP.Timeout, cfg.HTTP.MaxRetries, 500*time.Millisecond, cfg.HTTP.RequestsPerSecond)
	r := &Registry{sources: make(map[string]Source), policy: cfg.Policy.Normalize(), logger: logger}
	add := func(s Source) error {
		if s.Name() == "" {
			return fmt.Errorf("feed source without name")
		}
		if _, dup := r.sources[s.Name()]; dup {
			return fmt.Errorf("feed source %q declared twice", s.Name())
		}
		r.sources[s.Name()] = s
		return nil
	}
	for _, c := range cfg.RSS {
		if err := add(NewRSS(c, hc)); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.NewsAPI {
		if err := add(NewNewsAPI(c, hc)); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.YouTube {
		if err := add(NewYouTube(c, hc)); err != nil {
			return nil, err
		}
	}
	for _, c := range cfg.Generated {
		if gen == nil {
			return nil, fmt.Errorf("generated feed %q needs an analysis provider", c.Name)
		}
		if err := add(NewGenerated(c, gen)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a source.
func (r *Registry) Register(s Source) { r.sources[s.Name()] = s }

// Get returns the named source.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// FetchResult is what one source produced.
type FetchResult struct {
	Source string
	Items  []models.RawItem
	Err    error
}

// FetchAll fetches the named sources concurrently. A failing source is logged and contributes no
// items; results keep the order of names.
func (r *Registry) FetchAll(ctx context.Context, names []string) []FetchResult {
	results := make([]FetchResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			res := FetchResult{Source: name}
			src, ok := r.Get(name)
			if !ok {
				res.Err = fmt.Errorf("unknown source %q", name)
			} else {
				items, err := src.Fetch(gctx)
				if err != nil {
					res.Err = err
				} else {
					res.Items = r.normalize(items)
				}
			}
			if res.Err != nil {
				r.logger.Printf("source %s failed: %v", name, res.Err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// normalize strips markup, drops items from blocked hosts or without a link, and fills the
// source label from the host policy when the producer gave none.
func (r *Registry) normalize(items []models.RawItem) []models.RawItem {
	out := make([]models.RawItem, 0, len(items))
	for _, it := range items {
		it.Link = helpers.CollapseSpace(it.Link)
		if it.Link == "" || !r.policy.Allowed(it.Link) {
			continue
		}
		it.Title = helpers.PlainText(it.Title)
		it.Summary = helpers.PlainText(it.Summary)
		if it.Source == "" {
			if label, ok := r.policy.Label(it.Link); ok {
				it.Source = label
			}
		}
		out = append(out, it)
	}
	return out
}

func formatDate(t *time.Time, fallbacks ...*time.Time) string {
	for _, c := range append([]*time.Time{t}, fallbacks...) {
		if c != nil && !c.IsZero() {
			return c.UTC().Format(DateLayout)
		}
	}
	return time.Now().UTC().Format(DateLayout)
}
