package lexicon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFromReader_Valid(t *testing.T) {
	src := `
phrases:
  "Here Comes The Sun": ["song-1"]
  "purple rain": ["song-4", "song-5"]
`
	idx, err := LoadFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
	if ids := idx.SongIDs("here comes the sun"); len(ids) != 1 || ids[0] != "song-1" {
		t.Errorf("song IDs = %v, want [song-1]", ids)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	src := `
phrases:
  "hey jude": ["song-1"]
phrazes:
  "typo": ["song-2"]
`
	if _, err := LoadFromReader(strings.NewReader(src)); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestLoadFromReader_EmptyPhrases(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("phrases: {}\n")); err == nil {
		t.Fatal("expected error for resource without phrases")
	}
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("phrases: [not a map")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	src := "phrases:\n  \"dancing queen\": [\"song-2\"]\n"
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}

	idx, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := idx.SongIDs("dancing queen"); len(ids) != 1 || ids[0] != "song-2" {
		t.Errorf("song IDs = %v, want [song-2]", ids)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_PassesOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	src := "phrases:\n  \"dancing queen\": [\"song-2\"]\n"
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}

	// A full-equality word threshold disables the Levenshtein shortcut, so
	// the near-miss query no longer matches fuzzily.
	idx, err := Load(path, WithFuzzyWordThreshold(1.0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches := idx.FindPhraseMatches("dancin quen"); len(matches) != 0 {
		t.Errorf("matches = %v, want none with strict word threshold", matches)
	}
}
