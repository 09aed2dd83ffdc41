// Package moderation defines the content-moderation collaborator contract.
//
// Moderation always runs as a pre-step before the match orchestrator: a hard
// block skips matching entirely, and a soft filter substitutes the query text
// so that the orchestrator sees it as organic input. The moderation outcome
// is threaded into the result's explanation but never influences ranking.
//
// The decision logic itself lives outside this repository; this package
// carries the interface, the wire types, and two small reference
// implementations used for wiring and tests.
package moderation

import (
	"context"
	"strings"
)

// Category classifies why a text was moderated.
type Category string

const (
	CategoryNone      Category = "none"
	CategoryProfanity Category = "profanity"
	CategoryHate      Category = "hate"
	CategoryAdult     Category = "adult"
)

// Decision is the moderation verdict for one query text.
type Decision struct {
	// Allowed is false for a hard block: the caller must surface a policy
	// response and never run the matcher.
	Allowed bool

	// Category classifies the flagged content. CategoryNone when clean.
	Category Category

	// Confidence is the moderator's certainty in [0, 1].
	Confidence float64

	// Reason is an optional human-readable explanation.
	Reason string

	// ReplacementText, when non-empty on an allowed decision, substitutes the
	// query text before matching.
	ReplacementText string
}

// Annotation records a moderation outcome on a match result. It is
// explanation payload only — ranking never sees it.
type Annotation struct {
	Category     Category
	WasFiltered  bool
	OriginalText string
}

// Moderator is the external moderation collaborator.
//
// Implementations must be safe for concurrent use.
type Moderator interface {
	Moderate(ctx context.Context, text string) (Decision, error)
}

// AllowAll is a passthrough [Moderator] that permits every text unchanged.
type AllowAll struct{}

// Moderate implements [Moderator].
func (AllowAll) Moderate(ctx context.Context, text string) (Decision, error) {
	return Decision{Allowed: true, Category: CategoryNone, Confidence: 1}, nil
}

// Blocklist is a keyword-list [Moderator] for wiring and tests. Terms in
// Block produce a hard block; keys in Replace are substituted with their
// values before matching. Matching is case-insensitive on whole words.
type Blocklist struct {
	Block   []string
	Replace map[string]string
}

// Moderate implements [Moderator].
func (b *Blocklist) Moderate(ctx context.Context, text string) (Decision, error) {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	for _, term := range b.Block {
		for _, w := range words {
			if w == strings.ToLower(term) {
				return Decision{
					Allowed:    false,
					Category:   CategoryHate,
					Confidence: 1,
					Reason:     "blocked term",
				}, nil
			}
		}
	}

	replaced := false
	out := make([]string, len(words))
	copy(out, words)
	for i, w := range out {
		if sub, ok := b.Replace[w]; ok {
			out[i] = sub
			replaced = true
		}
	}
	if replaced {
		return Decision{
			Allowed:         true,
			Category:        CategoryProfanity,
			Confidence:      0.9,
			ReplacementText: strings.Join(out, " "),
		}, nil
	}
	return Decision{Allowed: true, Category: CategoryNone, Confidence: 1}, nil
}
