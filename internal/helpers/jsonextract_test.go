package helpers

import (
	"errors"
	"testing"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced with language", "以下です。\n```json\n[{\"title\":\"a]b\"}]\n```\n以上", `[{"title":"a]b"}]`},
		{"bare array in prose", `Here: [{"url":"u"},{"url":"v"}] done`, `[{"url":"u"},{"url":"v"}]`},
		{"skips leading bracket text", `see [1 [{"k":"\"["}]`, `[{"k":"\"["}]`},
		{"tilde fence", "~~~\n[]\n~~~", `[]`},
		{"byte order mark", "\uFEFF[{\"url\":\"u\"}]", `[{"url":"u"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONArray(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	got, err := ExtractJSON("noise {\"risk\":\"low\",\"n\":[1,2]} trailing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"risk":"low","n":[1,2]}` {
		t.Fatalf("unexpected %q", got)
	}
}

func TestExtractJSONMissing(t *testing.T) {
	if _, err := ExtractJSONArray("no json here {"); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}
