package textutil

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "The Expanse", "the-expanse"},
		{"accents", "Wiedźmin: Ostatnie Życzenie", "wiedzmin-ostatnie-zyczenie"},
		{"punctuation runs", "Foo -- Bar!!", "foo-bar"},
		{"numbers", "Saga Tom 2", "saga-tom-2"},
		{"empty", "", "series"},
		{"only symbols", "!!!", "series"},
		{"leading symbols", "...Dune", "dune"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.input); got != tc.expected {
				t.Fatalf("Slugify(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSlugifyStable(t *testing.T) {
	first := Slugify("Cień Wiatru")
	second := Slugify("Cien Wiatru")
	if first != second {
		t.Fatalf("expected accent-folded slug to match plain ASCII: %q vs %q", first, second)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName("a/b:c*d?e"); got != "a-b-c-de" {
		t.Fatalf("unexpected sanitized name: %q", got)
	}
	if got := SanitizeFileName("   "); got != "" {
		t.Fatalf("expected empty result for whitespace input, got %q", got)
	}
}
