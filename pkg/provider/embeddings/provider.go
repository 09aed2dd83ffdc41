// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps short chat texts and song descriptor strings to
// dense float32 vectors. These vectors feed the semantic searcher's ANN
// queries against the song catalog.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions), and that dimensionality must match
// the catalog's vector columns. Embedding the same text twice should yield a
// near-deterministic vector; the matching engine relies on this for stable
// results across repeated queries.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding vector for a single text. It returns an
	// error when text is empty or whitespace-only, when the request fails, or
	// when ctx is cancelled. The text is passed to the backend verbatim; any
	// model-specific prefixing is the caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one backend call.
	// The i-th result corresponds to texts[i]. On any error the entire result
	// is nil — partial results are not returned. Used by the catalog import
	// pipeline, not by the per-message matching path.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider, constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging and
	// for verifying that catalog and query vectors come from the same space.
	ModelID() string
}
