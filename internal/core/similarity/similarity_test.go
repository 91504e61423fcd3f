package similarity

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestSimilarityKnownValues(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "", 0.0},
		{"kitten", "sitting", 4.0 / 7.0},
		{"same", "same", 1.0},
	}
	for _, tc := range cases {
		got := Similarity(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestLevenshteinClassicExamples(t *testing.T) {
	if d := Levenshtein("kitten", "sitting"); d != 3 {
		t.Fatalf("expected distance 3, got %d", d)
	}
	if d := Levenshtein("flaw", "lawn"); d != 2 {
		t.Fatalf("expected distance 2, got %d", d)
	}
}

func TestIsDuplicateUsesStrictThreshold(t *testing.T) {
	// 10 runes with 2 substitutions: similarity is exactly 0.8, not a duplicate.
	if IsDuplicate("abcdefghij", []string{"abcdefghXY"}) {
		t.Fatalf("similarity of exactly 0.8 must not count as duplicate")
	}
	if !IsDuplicate("abcdefghij", []string{"unrelated", "abcdefghiX"}) {
		t.Fatalf("expected 0.9 similarity to count as duplicate")
	}
}

func TestSimilarityProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		b := rapid.String().Draw(t, "b")

		ab := Similarity(a, b)
		if ab != Similarity(b, a) {
			t.Fatalf("not symmetric for %q, %q", a, b)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("out of bounds: %v", ab)
		}
		if Similarity(a, a) != 1.0 {
			t.Fatalf("self similarity is not 1 for %q", a)
		}
	})
}
