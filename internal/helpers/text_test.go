package helpers

import "testing"

func TestPlainTextRemovesTagsAndScripts(t *testing.T) {
	input := `<p>児童 <strong>虐待</strong>&amp;保護<script>alert('x')</script></p>
	  続報`
	got := PlainText(input)
	want := "児童 虐待&保護 続報"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"児童相談所が保護", 5, "児童相談所"},
		{"short", 10, "short"},
		{"abc", 3, "abc"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Fatalf("Truncate(%q,%d)=%q want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := CollapseSpace("  Oak \t  School\n"); got != "Oak School" {
		t.Fatalf("unexpected %q", got)
	}
}
