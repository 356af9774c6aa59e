package index

import (
	"sort"

	"github.com/mohammad-safakhou/casewatch/models"
)

// DefaultMinTagCount hides rare tags from the tag view.
const DefaultMinTagCount = 20

// TagCount is one tag and how many records carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagCounts counts tag occurrences and keeps tags seen at least min times, most frequent first
// and then by tag.
func TagCounts(records []models.Record, min int) []TagCount {
	counts := make(map[string]int)
	for _, r := range records {
		for _, t := range r.Fields.Tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		if n >= min {
			out = append(out, TagCount{Tag: tag, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// Filter keeps records carrying tag (when set) dated on or after since (YYYY-MM-DD, when set).
func Filter(records []models.Record, tag, since string) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if tag != "" && !r.HasTag(tag) {
			continue
		}
		if since != "" && r.Fields.Date < since {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ByIDs returns the records named by hits, in hit order.
func ByIDs(records []models.Record, hits []Hit) []models.Record {
	byID := make(map[int64]models.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	out := make([]models.Record, 0, len(hits))
	for _, h := range hits {
		if r, ok := byID[h.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}
