package lexicon

import (
	"fmt"
	"sync"
	"testing"
)

func testIndex() *Index {
	return New(map[string][]string{
		"here comes the sun":   {"song-1"},
		"dancing queen":        {"song-2"},
		"walking on sunshine":  {"song-3"},
		"purple rain":          {"song-4", "song-5"},
		"one two three a four": {"song-6"},
	})
}

func TestFindPhraseMatches_Exact(t *testing.T) {
	idx := testIndex()

	matches := idx.FindPhraseMatches("I was playing Here Comes The Sun again!")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.Phrase != "here comes the sun" {
		t.Errorf("phrase = %q, want %q", m.Phrase, "here comes the sun")
	}
	if m.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", m.Confidence)
	}
	if m.Type != MatchExact {
		t.Errorf("type = %q, want exact", m.Type)
	}
	if len(m.SongIDs) != 1 || m.SongIDs[0] != "song-1" {
		t.Errorf("song IDs = %v, want [song-1]", m.SongIDs)
	}
}

func TestFindPhraseMatches_ExactIgnoresCaseAndPunctuation(t *testing.T) {
	idx := testIndex()

	matches := idx.FindPhraseMatches("PURPLE... rain?!")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].Type != MatchExact {
		t.Errorf("type = %q, want exact", matches[0].Type)
	}
	if len(matches[0].SongIDs) != 2 {
		t.Errorf("song IDs = %v, want two entries", matches[0].SongIDs)
	}
}

func TestFindPhraseMatches_MultipleExactSortedByPhrase(t *testing.T) {
	idx := testIndex()

	matches := idx.FindPhraseMatches("dancing queen meets purple rain")
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	// Equal confidence, so ties break on phrase.
	if matches[0].Phrase != "dancing queen" || matches[1].Phrase != "purple rain" {
		t.Errorf("order = [%q, %q], want [dancing queen, purple rain]",
			matches[0].Phrase, matches[1].Phrase)
	}
}

func TestFindPhraseMatches_PartialOverlap(t *testing.T) {
	idx := testIndex()

	// No phrase is contained verbatim; "sunshine" and "walking" hit the
	// inverted index. Overlap 2/3 of "walking on sunshine".
	matches := idx.FindPhraseMatches("sunshine and walking shoes")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.Type != MatchPartial {
		t.Fatalf("type = %q, want partial", m.Type)
	}
	want := 2.0 / 3.0
	if diff := m.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", m.Confidence, want)
	}
}

func TestFindPhraseMatches_PartialConfidenceCapped(t *testing.T) {
	idx := testIndex()

	// All three phrase words appear, but scrambled so the exact tier misses.
	matches := idx.FindPhraseMatches("sunshine walking right on")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].Confidence != 0.8 {
		t.Errorf("confidence = %v, want capped at 0.8", matches[0].Confidence)
	}
}

func TestFindPhraseMatches_PartialBelowThresholdDropped(t *testing.T) {
	idx := testIndex()

	// One word of the five-word phrase gives ratio 0.2, which must not
	// survive the partial threshold; the fuzzy tier finds nothing either.
	matches := idx.FindPhraseMatches("three cheers everybody")
	if len(matches) != 0 {
		t.Fatalf("matches = %v, want none", matches)
	}
}

func TestFindPhraseMatches_PartialLimit(t *testing.T) {
	entries := make(map[string][]string)
	for i := 0; i < 8; i++ {
		entries[fmt.Sprintf("midnight sky number%d extra%d", i, i)] = []string{fmt.Sprintf("song-%d", i)}
	}
	idx := New(entries)

	matches := idx.FindPhraseMatches("midnight sky forever")
	if len(matches) != 5 {
		t.Fatalf("matches = %d, want capped at 5", len(matches))
	}
	for _, m := range matches {
		if m.Type != MatchPartial {
			t.Errorf("type = %q, want partial", m.Type)
		}
	}
}

func TestFindPhraseMatches_Fuzzy(t *testing.T) {
	idx := testIndex()

	// "dancin" is a substring of "dancing"; "quen" is one edit from "queen".
	matches := idx.FindPhraseMatches("dancin quen tonight")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	m := matches[0]
	if m.Type != MatchFuzzy {
		t.Fatalf("type = %q, want fuzzy", m.Type)
	}
	// Both phrase words matched: ratio 1.0 scaled by 0.6.
	if diff := m.Confidence - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want 0.6", m.Confidence)
	}
}

func TestFindPhraseMatches_FuzzySingleWordNotEnough(t *testing.T) {
	idx := testIndex()

	// Only "quen" ~ "queen" matches; one matched word is below the minimum.
	matches := idx.FindPhraseMatches("quen forever")
	if len(matches) != 0 {
		t.Fatalf("matches = %v, want none", matches)
	}
}

func TestFindPhraseMatches_EmptyInput(t *testing.T) {
	idx := testIndex()

	for _, input := range []string{"", "   ", "!!!", "\t\n"} {
		if matches := idx.FindPhraseMatches(input); len(matches) != 0 {
			t.Errorf("FindPhraseMatches(%q) = %v, want none", input, matches)
		}
	}
}

func TestFindPhraseMatches_NoLexicon(t *testing.T) {
	idx := New(nil)
	if matches := idx.FindPhraseMatches("anything at all"); len(matches) != 0 {
		t.Fatalf("matches = %v, want none", matches)
	}
}

func TestAddPhrase_MergesAndDeduplicates(t *testing.T) {
	idx := New(nil)
	idx.AddPhrase("Bohemian Rhapsody", []string{"song-7"})
	idx.AddPhrase("bohemian rhapsody!", []string{"song-7", "song-8"})

	ids := idx.SongIDs("bohemian rhapsody")
	if len(ids) != 2 || ids[0] != "song-7" || ids[1] != "song-8" {
		t.Fatalf("song IDs = %v, want [song-7 song-8]", ids)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (normalised duplicates merge)", idx.Len())
	}
}

func TestAddPhrase_IgnoresEmptyEntries(t *testing.T) {
	idx := New(nil)
	idx.AddPhrase("   ", []string{"song-1"})
	idx.AddPhrase("valid phrase", nil)

	if idx.Len() != 0 {
		t.Errorf("Len() = %d, want 0", idx.Len())
	}
}

func TestIndex_ConcurrentReadersAndWriter(t *testing.T) {
	idx := testIndex()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				idx.FindPhraseMatches("here comes the sun")
				idx.SongIDs("purple rain")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			idx.AddPhrase(fmt.Sprintf("new phrase number%d", j), []string{"song-x"})
		}
	}()
	wg.Wait()

	if idx.Len() != 105 {
		t.Errorf("Len() = %d, want 105", idx.Len())
	}
}

func TestMatchIDs_DefensiveCopy(t *testing.T) {
	idx := New(map[string][]string{"purple rain": {"song-4"}})

	matches := idx.FindPhraseMatches("purple rain")
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	matches[0].SongIDs[0] = "mutated"

	if ids := idx.SongIDs("purple rain"); ids[0] != "song-4" {
		t.Errorf("index mutated through returned match: %v", ids)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, WORLD!!", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"it's 99 problems", "it s 99 problems"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"Hello, WORLD!!", "already normal", "MiXeD   CaSe!"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"queen", "queen", 1},
		{"quen", "queen", 0.8},
		{"abc", "xyz", 0},
		{"", "", 1},
	}
	for _, tc := range tests {
		got := levenshteinSimilarity(tc.a, tc.b)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("levenshteinSimilarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
