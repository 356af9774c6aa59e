package feeds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/helpers"
	"github.com/mohammad-safakhou/casewatch/models"
)

// Generated asks the analysis collaborator for a JSON array of cases.
type Generated struct {
	cfg config.GeneratedConfig
	gen Generator
}

func NewGenerated(cfg config.GeneratedConfig, gen Generator) *Generated {
	return &Generated{cfg: cfg, gen: gen}
}

func (g *Generated) Name() string { return g.cfg.Name }

type generatedCase struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Date     string   `json:"date"`
	Source   string   `json:"source"`
	Court    string   `json:"court"`
	Location string   `json:"location"`
	Tags     []string `json:"tags"`
}

func (g *Generated) Fetch(ctx context.Context) ([]models.RawItem, error) {
	out, err := g.gen.Generate(ctx, g.cfg.Prompt)
	if err != nil {
		return nil, err
	}
	arr, err := helpers.ExtractJSONArray(out)
	if err != nil {
		return nil, fmt.Errorf("generated feed %s: %w", g.cfg.Name, err)
	}
	var cases []generatedCase
	if err := json.Unmarshal([]byte(arr), &cases); err != nil {
		return nil, fmt.Errorf("generated feed %s: decode: %w", g.cfg.Name, err)
	}
	items := make([]models.RawItem, 0, len(cases))
	for _, c := range cases {
		src := c.Source
		if src == "" {
			src = g.cfg.Source
		}
		items = append(items, models.RawItem{
			Title:         c.Title,
			Summary:       c.Summary,
			Link:          c.URL,
			PublishedDate: c.Date,
			Source:        src,
			Tags:          c.Tags,
			Court:         c.Court,
			Location:      c.Location,
		})
	}
	return items, nil
}
