package lexicon

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ResourceFile is the top-level structure of a lexicon YAML resource.
//
// Example:
//
//	phrases:
//	  "hey jude": ["s1"]
//	  "here comes the sun": ["s2", "s3"]
type ResourceFile struct {
	Phrases map[string][]string `yaml:"phrases"`
}

// Load reads a lexicon YAML resource from disk and builds an [Index] from it.
// Returns a descriptive error if the file cannot be opened or parsed.
func Load(path string, opts ...Option) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open resource %q: %w", path, err)
	}
	defer f.Close()

	idx, err := LoadFromReader(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("lexicon: parse resource %q: %w", path, err)
	}
	return idx, nil
}

// LoadFromReader parses a lexicon YAML resource from an [io.Reader] and
// builds an [Index]. Useful in tests where resources are string literals.
func LoadFromReader(r io.Reader, opts ...Option) (*Index, error) {
	var rf ResourceFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown top-level keys to catch typos
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("lexicon: decode yaml: %w", err)
	}
	if len(rf.Phrases) == 0 {
		return nil, fmt.Errorf("lexicon: resource contains no phrases")
	}
	return New(rf.Phrases, opts...), nil
}
