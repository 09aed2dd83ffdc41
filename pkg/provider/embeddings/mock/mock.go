// Package mock provides a test double for the embeddings.Provider interface.
//
// The Provider derives a deterministic unit vector from each input text, so
// the same text always embeds to the same vector — mirroring the
// near-determinism the real providers are expected to have. Tests that need
// exact control can pin vectors per text via Vectors.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/lyricroom/songmatch/pkg/provider/embeddings"
)

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a deterministic mock implementation of embeddings.Provider.
// The zero value is not usable; construct via [New].
type Provider struct {
	dims int

	mu sync.Mutex

	// Vectors pins exact embedding results per input text, overriding the
	// hash-derived default.
	Vectors map[string][]float32

	// Err, when non-nil, is returned by every Embed and EmbedBatch call.
	Err error

	// EmbedCalls records the texts passed to Embed, in order.
	EmbedCalls []string
}

// New returns a mock Provider producing vectors of the given dimension.
func New(dims int) *Provider {
	return &Provider{dims: dims, Vectors: make(map[string][]float32)}
}

// Pin fixes the vector returned for text. The vector is normalised to unit
// length so cosine comparisons behave like real embeddings.
func (p *Provider) Pin(text string, vec []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Vectors[text] = normalize(vec)
}

// Embed implements embeddings.Provider. It rejects empty text, per the
// provider contract.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("mock embeddings: text must not be empty")
	}
	if vec, ok := p.Vectors[text]; ok {
		return vec, nil
	}
	return p.derive(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dims }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embed" }

// derive produces a unit vector from an FNV-1a hash of the text using a
// small xorshift generator. Deterministic per text.
func (p *Provider) derive(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()
	if state == 0 {
		state = 1
	}
	vec := make([]float32, p.dims)
	for i := range vec {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float32(int64(state%2000)-1000) / 1000
	}
	return normalize(vec)
}

// normalize scales vec to unit length. A zero vector is returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
