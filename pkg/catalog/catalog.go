// Package catalog defines the song catalog model and the Store interface the
// matching engine consumes.
//
// The catalog is read-only from the engine's perspective: songs are created
// and updated by an external import pipeline. Store implementations must be
// safe for concurrent use.
package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store.Song] when no song with the given ID
// exists.
var ErrNotFound = errors.New("catalog: song not found")

// Space selects which embedding column an ANN query runs against.
type Space string

const (
	// SpaceMetadata is the primary embedding space, built from song metadata
	// (title, artist, tags, descriptor phrases).
	SpaceMetadata Space = "metadata"

	// SpaceAboutness is the secondary embedding space, built from a semantic
	// summary of what the song is about (themes, mood, setting).
	SpaceAboutness Space = "aboutness"
)

// IsValid reports whether s is a recognised embedding space.
func (s Space) IsValid() bool {
	return s == SpaceMetadata || s == SpaceAboutness
}

// Song is a single catalog entry.
//
// The embedding dimension is constant catalog-wide; mixing dimensions in one
// store is a data error surfaced by the store implementation, not by callers.
type Song struct {
	// ID is the catalog-internal song identifier.
	ID string

	// Title is the song's display title.
	Title string

	// Artist is the performing artist's display name.
	Artist string

	// Year is the release year. Zero means unknown.
	Year int

	// Popularity is a 0–100 popularity score maintained by the import pipeline.
	Popularity int

	// Tags holds genre, mood, and content markers (e.g., "rock", "explicit").
	Tags []string

	// Phrases lists descriptor phrases associated with this song, used to seed
	// the phrase lexicon.
	Phrases []string

	// Embedding is the metadata-space vector. May be nil for songs that have
	// not been embedded yet; such songs never appear in ANN results.
	Embedding []float32

	// AboutnessEmbedding is the aboutness-space vector. May be nil.
	AboutnessEmbedding []float32

	// Placeholder marks synthetic or test entries that must never be surfaced
	// to end users.
	Placeholder bool

	// CanonicalID is an optional external identifier (e.g., a streaming
	// service track ID).
	CanonicalID string
}

// Decade returns the song's decade bucket (year integer-divided by 10 and
// multiplied by 10), or 0 when the release year is unknown.
func (s Song) Decade() int {
	if s.Year <= 0 {
		return 0
	}
	return s.Year / 10 * 10
}

// HasTag reports whether the song carries the given tag (case-insensitive
// comparison is the caller's responsibility; tags are stored lowercase by
// the import pipeline).
func (s Song) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Neighbor is a single ANN query result: a song ID and its cosine distance
// from the query vector. Similarity is 1 − Distance.
type Neighbor struct {
	SongID   string
	Distance float64
}

// Store is the catalog access interface consumed by the matching engine.
//
// Implementations must be safe for concurrent use. All methods honour
// context cancellation.
type Store interface {
	// Song returns the song with the given ID, or [ErrNotFound].
	Song(ctx context.Context, id string) (Song, error)

	// Songs returns the songs for the given IDs. IDs that do not resolve are
	// silently skipped; the result order is unspecified.
	Songs(ctx context.Context, ids []string) ([]Song, error)

	// Active returns all non-placeholder songs.
	Active(ctx context.Context) ([]Song, error)

	// TopByPopularity returns up to limit non-placeholder songs ordered by
	// popularity descending.
	TopByPopularity(ctx context.Context, limit int) ([]Song, error)

	// Nearest runs an approximate nearest-neighbour query in the given
	// embedding space and returns up to k neighbours ordered by ascending
	// cosine distance. Placeholder exclusion is NOT guaranteed; callers must
	// re-filter.
	Nearest(ctx context.Context, embedding []float32, k int, space Space) ([]Neighbor, error)

	// CountActive returns the number of non-placeholder songs.
	CountActive(ctx context.Context) (int, error)

	// Ping verifies connectivity with the backing store.
	Ping(ctx context.Context) error
}
