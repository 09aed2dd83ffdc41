// Package match implements the song match orchestrator: a sequential
// fallback chain over the phrase lexicon, the semantic searcher, and a
// popularity fallback, followed by recency/explicit post-filters, confidence
// calibration, and diversity-aware alternate selection.
package match

import (
	"errors"

	"github.com/lyricroom/songmatch/internal/moderation"
	"github.com/lyricroom/songmatch/pkg/catalog"
)

// ErrCatalogEmpty is the single fatal error of the matching core: the catalog
// holds no usable songs after exclusion filters. Every other internal failure
// degrades gracefully through the fallback chain.
var ErrCatalogEmpty = errors.New("match: catalog empty after exclusion filters")

// Strategy labels which matching strategy produced a candidate or result.
type Strategy string

const (
	// StrategyExact marks a candidate whose phrase matched verbatim.
	StrategyExact Strategy = "exact"

	// StrategyPhrase marks the lexicon strategy (and candidates from its
	// partial and fuzzy tiers).
	StrategyPhrase Strategy = "phrase"

	// StrategyEmbedding marks single-space semantic candidates.
	StrategyEmbedding Strategy = "embedding"

	// StrategyAboutness marks candidates from the dual-space union+rerank.
	StrategyAboutness Strategy = "aboutness-rerank"

	// StrategyPopularity marks popularity-fallback candidates.
	StrategyPopularity Strategy = "popularity-fallback"
)

// explicitTags are the content markers removed when explicit content is
// disallowed.
var explicitTags = []string{"explicit", "profanity", "adult"}

// Request is the input to one match call. RecentSongIDs is ephemeral,
// caller-supplied state; the core never persists it.
type Request struct {
	// Text is the raw chat message (after any moderation substitution).
	Text string

	// AllowExplicit permits candidates tagged explicit/profanity/adult.
	AllowExplicit bool

	// UserID identifies the requesting user. Optional; used only in logs.
	UserID string

	// RecentSongIDs lists songs recently shown to this user, consumed for
	// recency filtering and diversity relaxation.
	RecentSongIDs []string
}

// Reason carries strategy-specific match metadata for explanations.
type Reason struct {
	// MatchedPhrase is the lexicon phrase that matched, when applicable.
	MatchedPhrase string

	// Similarity is the semantic similarity or blended score, when applicable.
	Similarity float64

	// MetaScore and AboutnessScore are the per-space similarities on the
	// aboutness path.
	MetaScore      float64
	AboutnessScore float64
}

// Candidate is one scored song produced by a strategy. Scores are on the
// strategy's own scale (roughly 0–1 across all strategies).
type Candidate struct {
	Song     catalog.Song
	Score    float64
	Strategy Strategy
	Reason   Reason
}

// Explanation is the human-facing payload describing why the primary song
// was picked.
type Explanation struct {
	MatchedPhrase string
	Similarity    float64

	// Moderation records the moderation outcome, when moderation touched the
	// query. Never consulted by ranking.
	Moderation *moderation.Annotation
}

// Result is a successful match: one primary candidate, up to two alternates,
// and a calibrated confidence in [0, 1].
type Result struct {
	Primary     Candidate
	Alternates  []Candidate
	Confidence  float64
	Strategy    Strategy
	Explanation Explanation
}

// Response is the outcome of a [Service.Match] call: exactly one of Result
// or Blocked is set. A hard moderation block is a policy outcome, not a
// matching error.
type Response struct {
	Result  *Result
	Blocked *moderation.Decision
}
