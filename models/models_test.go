package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecordUnmarshalKeepsUnknownFields(t *testing.T) {
	in := `{"id":7,"url":"https://example.jp/a","date":"2024-05-01","title":"事件","tags":["虐待","逮捕"],` +
		`"summary":"概要","source":"NHK","collected_at":"2024-05-02T09:30:00.123456","victim_age":4}`

	var rec Record
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ID != 7 || rec.NaturalKey != "https://example.jp/a" || rec.Fields.Source != "NHK" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.CollectedAt.IsZero() || rec.CollectedAt.Day() != 2 {
		t.Fatalf("expected naive timestamp to parse, got %v", rec.CollectedAt)
	}
	if string(rec.Fields.Extra["victim_age"]) != "4" {
		t.Fatalf("expected unknown key retained, got %v", rec.Fields.Extra)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"victim_age":4`) {
		t.Fatalf("unknown key lost on write: %s", out)
	}
}

func TestRecordUnparseableTimestampRoundTrips(t *testing.T) {
	var rec Record
	if err := json.Unmarshal([]byte(`{"id":1,"url":"u","title":"t","collected_at":"last tuesday"}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"collected_at":"last tuesday"`) {
		t.Fatalf("expected raw timestamp written back: %s", out)
	}
}

func TestRecordMarshalWritesEmptyTags(t *testing.T) {
	rec := Record{ID: 2, NaturalKey: "u", Fields: Fields{Title: "t"}, CollectedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"tags":[]`) {
		t.Fatalf("expected empty tags array: %s", out)
	}
	if !strings.Contains(string(out), `"collected_at":"2025-01-02T03:04:05Z"`) {
		t.Fatalf("unexpected timestamp: %s", out)
	}
}

func TestRecordMarshalKeepsURLsReadable(t *testing.T) {
	rec := Record{ID: 1, NaturalKey: "https://news.example.jp/a?id=3&lang=ja", Fields: Fields{Title: "<速報>"}}
	out, err := rec.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"url":"https://news.example.jp/a?id=3&lang=ja"`) || !strings.Contains(string(out), `"title":"<速報>"`) {
		t.Fatalf("expected unescaped url and title: %s", out)
	}
	if strings.HasSuffix(string(out), "\n") {
		t.Fatalf("unexpected trailing newline")
	}
}

func TestCandidateValidate(t *testing.T) {
	if err := (Candidate{NaturalKey: "u", Fields: Fields{Title: "t"}}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Candidate{Fields: Fields{Title: "t"}}).Validate(); !errors.Is(err, ErrMalformedCandidate) {
		t.Fatalf("expected malformed for missing url, got %v", err)
	}
	if err := (Candidate{NaturalKey: "u"}).Validate(); !errors.Is(err, ErrMalformedCandidate) {
		t.Fatalf("expected malformed for missing title, got %v", err)
	}
}

func TestCollaboratorErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := error(&CollaboratorError{Collaborator: "analysis", Transient: true, Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("expected unwrap to base error")
	}
	var ce *CollaboratorError
	if !errors.As(err, &ce) || !ce.Transient {
		t.Fatalf("expected transient collaborator error")
	}
}
