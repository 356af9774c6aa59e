package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one entry of a persisted collection. NaturalKey is the origin URL and never changes
// once assigned; ID is assigned by the merger.
type Record struct {
	ID          int64
	NaturalKey  string
	Fields      Fields
	CollectedAt time.Time

	// collectedAtRaw keeps a timestamp that could not be parsed so it is written back untouched.
	collectedAtRaw string
}

// Fields is the structured payload of a record. Extra holds keys this version does not know
// about so older or newer documents round-trip without loss.
type Fields struct {
	Date      string
	Title     string
	Tags      []string
	Summary   string
	Source    string
	Court     string
	Location  string
	Thumbnail string
	Extra     map[string]json.RawMessage
}

// Candidate is a record that has not been merged yet.
type Candidate struct {
	NaturalKey string
	Fields     Fields
}

// Validate reports whether the candidate carries the fields required for insertion.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.NaturalKey) == "" {
		return fmt.Errorf("%w: missing url", ErrMalformedCandidate)
	}
	if strings.TrimSpace(c.Fields.Title) == "" {
		return fmt.Errorf("%w: missing title (url=%s)", ErrMalformedCandidate, c.NaturalKey)
	}
	return nil
}

// RawItem is what a feed collaborator produces before filtering.
type RawItem struct {
	Title         string
	Summary       string
	Link          string
	PublishedDate string
	Source        string
	Tags          []string
	Court         string
	Location      string
	Thumbnail     string
}

var knownRecordKeys = map[string]struct{}{
	"id": {}, "url": {}, "date": {}, "title": {}, "tags": {}, "summary": {}, "source": {},
	"court": {}, "location": {}, "thumbnail": {}, "collected_at": {},
}

var collectedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseCollectedAt(s string) (time.Time, bool) {
	for _, layout := range collectedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MarshalJSON writes the flat document form used by the collection files.
func (r Record) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(r.Fields.Extra)+11)
	for k, v := range r.Fields.Extra {
		if _, known := knownRecordKeys[k]; known {
			continue
		}
		doc[k] = v
	}
	doc["id"] = r.ID
	doc["url"] = r.NaturalKey
	doc["title"] = r.Fields.Title
	doc["summary"] = r.Fields.Summary
	doc["date"] = r.Fields.Date
	tags := r.Fields.Tags
	if tags == nil {
		tags = []string{}
	}
	doc["tags"] = tags
	if r.Fields.Source != "" {
		doc["source"] = r.Fields.Source
	}
	if r.Fields.Court != "" {
		doc["court"] = r.Fields.Court
	}
	if r.Fields.Location != "" {
		doc["location"] = r.Fields.Location
	}
	if r.Fields.Thumbnail != "" {
		doc["thumbnail"] = r.Fields.Thumbnail
	}
	switch {
	case !r.CollectedAt.IsZero():
		doc["collected_at"] = r.CollectedAt.Format(time.RFC3339Nano)
	case r.collectedAtRaw != "":
		doc["collected_at"] = r.collectedAtRaw
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads the flat document form, tolerating unknown keys and loose timestamps.
func (r *Record) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	var out Record
	str := func(key string, dst *string) error {
		raw, ok := doc[key]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("record field %s: %w", key, err)
		}
		return nil
	}
	if raw, ok := doc["id"]; ok && !bytes.Equal(raw, []byte("null")) {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("record field id: %w", err)
		}
		id, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return fmt.Errorf("record field id: %w", err)
			}
			id = int64(f)
		}
		out.ID = id
	}
	for key, dst := range map[string]*string{
		"url":       &out.NaturalKey,
		"date":      &out.Fields.Date,
		"title":     &out.Fields.Title,
		"summary":   &out.Fields.Summary,
		"source":    &out.Fields.Source,
		"court":     &out.Fields.Court,
		"location":  &out.Fields.Location,
		"thumbnail": &out.Fields.Thumbnail,
	} {
		if err := str(key, dst); err != nil {
			return err
		}
	}
	if raw, ok := doc["tags"]; ok && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &out.Fields.Tags); err != nil {
			return fmt.Errorf("record field tags: %w", err)
		}
	}
	var collected string
	if err := str("collected_at", &collected); err != nil {
		return err
	}
	if collected != "" {
		if t, ok := parseCollectedAt(collected); ok {
			out.CollectedAt = t
		} else {
			out.collectedAtRaw = collected
		}
	}
	for k, v := range doc {
		if _, known := knownRecordKeys[k]; known {
			continue
		}
		if out.Fields.Extra == nil {
			out.Fields.Extra = make(map[string]json.RawMessage)
		}
		out.Fields.Extra[k] = v
	}
	*r = out
	return nil
}

// HasTag reports whether the record carries tag.
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Fields.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
