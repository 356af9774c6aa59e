package index

import (
	"fmt"
	"testing"

	"github.com/mohammad-safakhou/casewatch/models"
)

func rec(id int64, title, date string, tags ...string) models.Record {
	return models.Record{ID: id, NaturalKey: fmt.Sprintf("https://example.jp/%d", id), Fields: models.Fields{Title: title, Date: date, Tags: tags}}
}

func TestSearchRanksMatchingRecord(t *testing.T) {
	records := []models.Record{
		rec(1, "child welfare office investigates neglect", "2024-05-01", "neglect"),
		rec(2, "weather forecast sunny", "2024-05-02"),
		rec(3, "court ruling on abuse case", "2024-05-03", "abuse"),
	}
	idx, err := Build(records)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search("neglect", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 1 || hits[0].Rank != 1 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	got := ByIDs(records, hits)
	if len(got) != 1 || got[0].NaturalKey != "https://example.jp/1" {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestTagCounts(t *testing.T) {
	var records []models.Record
	for i := 0; i < 25; i++ {
		records = append(records, rec(int64(i+1), "t", "2024-01-01", "虐待"))
	}
	for i := 0; i < 20; i++ {
		records = append(records, rec(int64(i+26), "t", "2024-01-01", "逮捕", "保護"))
	}
	records = append(records, rec(99, "t", "2024-01-01", "死亡"))

	got := TagCounts(records, DefaultMinTagCount)
	want := []TagCount{{"虐待", 25}, {"保護", 20}, {"逮捕", 20}}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFilter(t *testing.T) {
	records := []models.Record{
		rec(1, "a", "2024-01-01", "虐待"),
		rec(2, "b", "2024-03-01", "虐待", "逮捕"),
		rec(3, "c", "2024-04-01", "逮捕"),
	}
	cases := []struct {
		tag, since string
		want       []int64
	}{
		{"", "", []int64{1, 2, 3}},
		{"虐待", "", []int64{1, 2}},
		{"", "2024-02-15", []int64{2, 3}},
		{"逮捕", "2024-03-15", []int64{3}},
	}
	for _, tc := range cases {
		got := Filter(records, tc.tag, tc.since)
		if len(got) != len(tc.want) {
			t.Fatalf("tag=%q since=%q: got %d records", tc.tag, tc.since, len(got))
		}
		for i, id := range tc.want {
			if got[i].ID != id {
				t.Fatalf("tag=%q since=%q: got id %d at %d", tc.tag, tc.since, got[i].ID, i)
			}
		}
	}
}
