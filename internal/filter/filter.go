// Package filter decides whether free text is in scope and derives tags from it.
package filter

import (
	"errors"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/casewatch/config"
)

// Filter is immutable after New and safe for concurrent use.
type Filter struct {
	primary   []string
	secondary []string
	derived   []config.DerivedTagRule
}

// New builds a filter from configuration. At least one primary keyword is required.
func New(cfg config.FilterConfig) (*Filter, error) {
	f := &Filter{
		primary:   cleanKeywords(cfg.Primary),
		secondary: cleanKeywords(cfg.Secondary),
	}
	for _, rule := range cfg.Derived {
		tag := strings.TrimSpace(rule.Tag)
		match := cleanKeywords(rule.Match)
		if tag == "" || len(match) == 0 {
			continue
		}
		f.derived = append(f.derived, config.DerivedTagRule{Match: match, Tag: tag})
	}
	if len(f.primary) == 0 {
		return nil, errors.New("filter: at least one primary keyword required")
	}
	return f, nil
}

// Classify reports whether any primary keyword occurs in text. Secondary keywords never admit.
func (f *Filter) Classify(text string) bool {
	text = strings.ToLower(text)
	for _, kw := range f.primary {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ExtractTags returns every primary or secondary keyword found in text plus derived actor tags,
// deduplicated and sorted.
func (f *Filter) ExtractTags(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	for _, set := range [][]string{f.primary, f.secondary} {
		for _, kw := range set {
			if strings.Contains(lower, kw) {
				seen[kw] = struct{}{}
			}
		}
	}
	for _, rule := range f.derived {
		for _, m := range rule.Match {
			if strings.Contains(lower, m) {
				seen[rule.Tag] = struct{}{}
				break
			}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// MergeTags unions tag sets, dropping blanks, and returns them sorted.
func MergeTags(sets ...[]string) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, t := range set {
			if t = strings.TrimSpace(t); t != "" {
				seen[t] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
