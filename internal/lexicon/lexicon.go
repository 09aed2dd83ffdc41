// Package lexicon implements the phrase lexicon index: a static mapping from
// descriptor phrases to song IDs with a word-level inverted index, supporting
// exact, partial, and fuzzy lookup over normalised chat text.
//
// Lookup proceeds in three tiers, each attempted only when the previous one
// produced nothing:
//
//  1. Exact: the normalised query contains a phrase as a substring.
//     Confidence is always 1.0.
//
//  2. Partial: candidate phrases are gathered through the inverted index and
//     scored by the word-overlap ratio between query words and phrase words.
//     Confidence is the ratio capped at 0.8; only matches above 0.2 survive,
//     and the five candidates with the highest overlap count are kept.
//
//  3. Fuzzy: every phrase is scored by how many of its words a query word
//     nearly equals — substring containment, or Levenshtein similarity of at
//     least 0.8 for words of six characters or fewer. A phrase needs at least
//     two matched words and an overlap ratio of at least 0.6; confidence is
//     the ratio scaled by 0.6 and the top three survive.
//
// The index supports many concurrent readers and a serialised AddPhrase
// writer path. All methods are safe for concurrent use.
package lexicon

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/antzucaro/matchr"
)

// MatchType tells which lookup tier produced a [Match].
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPartial MatchType = "partial"
	MatchFuzzy   MatchType = "fuzzy"
)

// Default lookup thresholds. The partial and fuzzy knobs are adjustable via
// functional options; the exact tier has none.
const (
	defaultPartialMinConfidence = 0.2
	defaultPartialCap           = 0.8
	defaultPartialLimit         = 5
	defaultFuzzyMinRatio        = 0.6
	defaultFuzzyMinWords        = 2
	defaultFuzzyScale           = 0.6
	defaultFuzzyLimit           = 3
	defaultLevenshteinMin       = 0.8
	levenshteinMaxWordLen       = 6
	minIndexedWordLen           = 3
)

// Match is a single lexicon hit, ordered by descending confidence in the
// result slice returned by [Index.FindPhraseMatches].
type Match struct {
	// Phrase is the normalised lexicon phrase that matched.
	Phrase string

	// SongIDs are the catalog song IDs mapped to the phrase.
	SongIDs []string

	// Confidence is the tier-specific match confidence in (0, 1].
	Confidence float64

	// Type is the lookup tier that produced this match.
	Type MatchType
}

// Option is a functional option for configuring an [Index].
type Option func(*Index)

// WithFuzzyWordThreshold sets the minimum Levenshtein similarity for two
// short words to count as nearly equal in the fuzzy tier. Default: 0.8.
func WithFuzzyWordThreshold(threshold float64) Option {
	return func(idx *Index) {
		idx.levenshteinMin = threshold
	}
}

// WithFuzzyOverlapThreshold sets the minimum fraction of a phrase's words
// that must be matched for a fuzzy hit. Default: 0.6.
func WithFuzzyOverlapThreshold(threshold float64) Option {
	return func(idx *Index) {
		idx.fuzzyMinRatio = threshold
	}
}

// Index is the phrase→song-IDs lexicon with a word-level inverted index.
//
// Reads take a shared lock; [Index.AddPhrase] is the only writer and takes
// the exclusive lock, so the index is read-mostly and cheap to query
// concurrently.
type Index struct {
	mu sync.RWMutex

	// phrases maps a normalised phrase to its deduplicated song IDs.
	phrases map[string][]string

	// words maps each phrase word longer than two characters to the set of
	// phrases containing it.
	words map[string]map[string]struct{}

	fuzzyMinRatio  float64
	levenshteinMin float64
}

// New builds an [Index] from a phrase→song-IDs mapping. Keys are normalised;
// entries that normalise to the same phrase are merged.
func New(entries map[string][]string, opts ...Option) *Index {
	idx := &Index{
		phrases:        make(map[string][]string, len(entries)),
		words:          make(map[string]map[string]struct{}),
		fuzzyMinRatio:  defaultFuzzyMinRatio,
		levenshteinMin: defaultLevenshteinMin,
	}
	for _, o := range opts {
		o(idx)
	}
	for phrase, ids := range entries {
		idx.addLocked(phrase, ids)
	}
	return idx
}

// AddPhrase merges a phrase and its song IDs into the lexicon and reindexes
// the affected words. Safe to call while readers are active.
func (idx *Index) AddPhrase(phrase string, songIDs []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(phrase, songIDs)
}

// addLocked merges one entry. Callers must hold the write lock (or have
// exclusive access during construction).
func (idx *Index) addLocked(phrase string, songIDs []string) {
	norm := Normalize(phrase)
	if norm == "" || len(songIDs) == 0 {
		return
	}
	idx.phrases[norm] = mergeIDs(idx.phrases[norm], songIDs)
	for _, w := range strings.Fields(norm) {
		if len(w) < minIndexedWordLen {
			continue
		}
		set, ok := idx.words[w]
		if !ok {
			set = make(map[string]struct{})
			idx.words[w] = set
		}
		set[norm] = struct{}{}
	}
}

// Len returns the number of distinct phrases in the lexicon.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.phrases)
}

// SongIDs returns the song IDs mapped to the given phrase (normalised
// before lookup), or nil when the phrase is unknown.
func (idx *Index) SongIDs(phrase string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.phrases[Normalize(phrase)]
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// FindPhraseMatches looks the text up in the lexicon and returns matches
// ordered by descending confidence. Empty or whitespace-only input yields an
// empty result, never an error.
func (idx *Index) FindPhraseMatches(text string) []Match {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}
	queryWords := strings.Fields(norm)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if matches := idx.exactMatches(norm); len(matches) > 0 {
		return matches
	}
	if matches := idx.partialMatches(queryWords); len(matches) > 0 {
		return matches
	}
	return idx.fuzzyMatches(queryWords)
}

// exactMatches returns every phrase contained verbatim in the normalised
// query, each with confidence 1.0.
func (idx *Index) exactMatches(norm string) []Match {
	var matches []Match
	for phrase, ids := range idx.phrases {
		if strings.Contains(norm, phrase) {
			matches = append(matches, idx.newMatch(phrase, ids, 1.0, MatchExact))
		}
	}
	sortMatches(matches)
	return matches
}

// partialMatches scores candidate phrases (found through the inverted index)
// by word-overlap ratio. Only attempted when the exact tier was empty.
func (idx *Index) partialMatches(queryWords []string) []Match {
	querySet := make(map[string]struct{}, len(queryWords))
	for _, w := range queryWords {
		querySet[w] = struct{}{}
	}

	// Candidate phrases share at least one indexed word with the query.
	candidates := make(map[string]struct{})
	for w := range querySet {
		for phrase := range idx.words[w] {
			candidates[phrase] = struct{}{}
		}
	}

	type scored struct {
		match   Match
		overlap int
	}
	var results []scored
	for phrase := range candidates {
		phraseWords := strings.Fields(phrase)
		overlap := 0
		for _, pw := range phraseWords {
			if _, ok := querySet[pw]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		ratio := float64(overlap) / float64(len(phraseWords))
		conf := min(ratio, defaultPartialCap)
		if conf <= defaultPartialMinConfidence {
			continue
		}
		results = append(results, scored{
			match:   idx.newMatch(phrase, idx.phrases[phrase], conf, MatchPartial),
			overlap: overlap,
		})
	}

	// Top 5 by overlap count, ties by confidence then phrase.
	sort.Slice(results, func(i, j int) bool {
		if results[i].overlap != results[j].overlap {
			return results[i].overlap > results[j].overlap
		}
		if results[i].match.Confidence != results[j].match.Confidence {
			return results[i].match.Confidence > results[j].match.Confidence
		}
		return results[i].match.Phrase < results[j].match.Phrase
	})
	if len(results) > defaultPartialLimit {
		results = results[:defaultPartialLimit]
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, r.match)
	}
	sortMatches(matches)
	return matches
}

// fuzzyMatches scans every phrase counting words nearly equal to a query
// word. Only attempted when both exact and partial tiers were empty.
func (idx *Index) fuzzyMatches(queryWords []string) []Match {
	var matches []Match
	for phrase, ids := range idx.phrases {
		phraseWords := strings.Fields(phrase)
		matched := 0
		for _, pw := range phraseWords {
			for _, qw := range queryWords {
				if idx.nearEqual(qw, pw) {
					matched++
					break
				}
			}
		}
		if matched < defaultFuzzyMinWords {
			continue
		}
		ratio := float64(matched) / float64(len(phraseWords))
		if ratio < idx.fuzzyMinRatio {
			continue
		}
		conf := ratio * defaultFuzzyScale
		matches = append(matches, idx.newMatch(phrase, ids, conf, MatchFuzzy))
	}
	sortMatches(matches)
	if len(matches) > defaultFuzzyLimit {
		matches = matches[:defaultFuzzyLimit]
	}
	return matches
}

// nearEqual reports whether a query word nearly equals a phrase word:
// substring containment in either direction (for words long enough to be
// meaningful), or Levenshtein similarity above the threshold for short words.
func (idx *Index) nearEqual(queryWord, phraseWord string) bool {
	if queryWord == phraseWord {
		return true
	}
	if len(phraseWord) >= minIndexedWordLen && len(queryWord) >= minIndexedWordLen {
		if strings.Contains(queryWord, phraseWord) || strings.Contains(phraseWord, queryWord) {
			return true
		}
	}
	if len(phraseWord) <= levenshteinMaxWordLen {
		if levenshteinSimilarity(queryWord, phraseWord) >= idx.levenshteinMin {
			return true
		}
	}
	return false
}

// newMatch builds a Match with a defensive copy of the ID slice, so callers
// never observe later AddPhrase merges through a shared backing array.
func (idx *Index) newMatch(phrase string, ids []string, conf float64, typ MatchType) Match {
	out := make([]string, len(ids))
	copy(out, ids)
	return Match{Phrase: phrase, SongIDs: out, Confidence: conf, Type: typ}
}

// sortMatches orders by confidence descending, ties by phrase for
// deterministic output.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Phrase < matches[j].Phrase
	})
}

// Normalize lowercases s, strips punctuation to spaces, and collapses
// whitespace. Normalisation is idempotent: Normalize(Normalize(s)) ==
// Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// levenshteinSimilarity converts an edit distance into a [0,1] similarity
// relative to the longer word.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// mergeIDs unions two ID slices preserving first-seen order.
func mergeIDs(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, id := range existing {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range extra {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
