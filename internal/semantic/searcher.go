// Package semantic implements embedding-based song retrieval: the query text
// is embedded, an approximate nearest-neighbour search runs against the
// catalog's vector index, and the top results are optionally reranked with
// exact cosine similarity.
//
// An optional "aboutness" path unions candidates from two embedding spaces
// (raw metadata and a themes/mood/setting summary) and blends their scores.
// The aboutness path is strictly additive: any failure inside it falls back
// to the standard single-space search.
//
// Every failure in this package — provider errors, malformed vectors, ANN
// query errors — is absorbed locally and yields an empty result. The searcher
// never returns an error; the orchestrator's fallback chain depends on that.
package semantic

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lyricroom/songmatch/pkg/catalog"
	"github.com/lyricroom/songmatch/pkg/provider/embeddings"
)

const (
	defaultTopK = 10

	defaultMetaWeight      = 0.7
	defaultAboutnessWeight = 0.3
)

// Hit is a single semantic search result.
type Hit struct {
	// SongID is the matched catalog song.
	SongID string

	// Score is the ranking score: cosine similarity on the single-space path,
	// or the blended score on the aboutness path.
	Score float64

	// MetaScore and AboutnessScore are the per-space similarities on the
	// aboutness path. Zero when the song was absent from that space's top-N.
	MetaScore      float64
	AboutnessScore float64

	// Aboutness reports whether this hit came from the union+rerank path.
	Aboutness bool
}

// AboutnessConfig tunes the optional dual-space union+rerank path.
type AboutnessConfig struct {
	// Enabled turns the aboutness path on.
	Enabled bool

	// MetaWeight and AboutnessWeight blend the two per-space similarities.
	// Defaults: 0.7 and 0.3.
	MetaWeight      float64
	AboutnessWeight float64

	// UnionSize is the per-space top-N unioned before reranking.
	// Defaults to the searcher's top-K.
	UnionSize int
}

// Option is a functional option for configuring a [Searcher].
type Option func(*Searcher)

// WithTopK sets how many neighbours each ANN query requests. Default: 10.
func WithTopK(k int) Option {
	return func(s *Searcher) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithRerank enables exact-cosine reranking of the ANN results, correcting
// approximation error at the cost of hydrating the top songs.
func WithRerank(enabled bool) Option {
	return func(s *Searcher) {
		s.rerank = enabled
	}
}

// WithAboutness configures the dual-space union+rerank path.
func WithAboutness(cfg AboutnessConfig) Option {
	return func(s *Searcher) {
		s.aboutness = cfg
	}
}

// Searcher runs embedding-based retrieval over the song catalog.
// It is read-only after construction and safe for concurrent use.
type Searcher struct {
	provider  embeddings.Provider
	store     catalog.Store
	topK      int
	rerank    bool
	aboutness AboutnessConfig
}

// New returns a [Searcher] using the given embedding provider and catalog
// store.
func New(provider embeddings.Provider, store catalog.Store, opts ...Option) *Searcher {
	s := &Searcher{
		provider: provider,
		store:    store,
		topK:     defaultTopK,
	}
	for _, o := range opts {
		o(s)
	}
	if s.aboutness.MetaWeight == 0 && s.aboutness.AboutnessWeight == 0 {
		s.aboutness.MetaWeight = defaultMetaWeight
		s.aboutness.AboutnessWeight = defaultAboutnessWeight
	}
	if s.aboutness.UnionSize <= 0 {
		s.aboutness.UnionSize = s.topK
	}
	return s
}

// Search embeds text and returns semantically similar songs ordered by
// descending score. It never returns an error: any internal failure is
// logged and yields an empty slice so the caller can fall through to the
// next strategy. Placeholder exclusion is not guaranteed here.
func (s *Searcher) Search(ctx context.Context, text string) []Hit {
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		slog.Warn("semantic: embed failed", "error", err)
		return nil
	}
	if !s.validVector(vec) {
		slog.Warn("semantic: provider returned malformed vector",
			"len", len(vec), "model", s.provider.ModelID())
		return nil
	}

	if s.aboutness.Enabled {
		if hits := s.aboutnessSearch(ctx, vec); len(hits) > 0 {
			return hits
		}
		// Aboutness is additive only; fall back to the single-space path.
	}
	return s.singleSpaceSearch(ctx, vec)
}

// singleSpaceSearch is the standard metadata-space ANN query, optionally
// followed by an exact-cosine rerank.
func (s *Searcher) singleSpaceSearch(ctx context.Context, vec []float32) []Hit {
	neighbors, err := s.store.Nearest(ctx, vec, s.topK, catalog.SpaceMetadata)
	if err != nil {
		slog.Warn("semantic: ann query failed", "error", err)
		return nil
	}

	hits := make([]Hit, 0, len(neighbors))
	for _, n := range neighbors {
		hits = append(hits, Hit{SongID: n.SongID, Score: 1 - n.Distance})
	}

	if s.rerank && len(hits) > 0 {
		if reranked := s.exactRerank(ctx, vec, hits); reranked != nil {
			hits = reranked
		}
	}
	sortHits(hits, nil)
	return hits
}

// exactRerank recomputes similarities with a precise cosine against the
// hydrated song embeddings, correcting ANN approximation error. A hydration
// failure leaves the ANN ordering untouched.
func (s *Searcher) exactRerank(ctx context.Context, vec []float32, hits []Hit) []Hit {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.SongID
	}
	songs, err := s.store.Songs(ctx, ids)
	if err != nil {
		slog.Warn("semantic: rerank hydration failed, keeping ann order", "error", err)
		return nil
	}
	byID := make(map[string][]float32, len(songs))
	for _, song := range songs {
		byID[song.ID] = song.Embedding
	}
	for i := range hits {
		if emb, ok := byID[hits[i].SongID]; ok && len(emb) == len(vec) {
			hits[i].Score = cosineSimilarity(vec, emb)
		}
	}
	return hits
}

// aboutnessSearch runs the dual-space union+rerank path. Returns nil on any
// failure so the caller degrades to the single-space search.
func (s *Searcher) aboutnessSearch(ctx context.Context, vec []float32) []Hit {
	var metaN, aboutN []catalog.Neighbor

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		metaN, err = s.store.Nearest(gctx, vec, s.aboutness.UnionSize, catalog.SpaceMetadata)
		return err
	})
	g.Go(func() error {
		var err error
		aboutN, err = s.store.Nearest(gctx, vec, s.aboutness.UnionSize, catalog.SpaceAboutness)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Warn("semantic: aboutness query failed, falling back to single space", "error", err)
		return nil
	}

	union := make(map[string]*Hit, len(metaN)+len(aboutN))
	for _, n := range metaN {
		union[n.SongID] = &Hit{SongID: n.SongID, MetaScore: 1 - n.Distance, Aboutness: true}
	}
	for _, n := range aboutN {
		h, ok := union[n.SongID]
		if !ok {
			h = &Hit{SongID: n.SongID, Aboutness: true}
			union[n.SongID] = h
		}
		h.AboutnessScore = 1 - n.Distance
	}
	if len(union) == 0 {
		return nil
	}

	ids := make([]string, 0, len(union))
	hits := make([]Hit, 0, len(union))
	for id, h := range union {
		h.Score = s.aboutness.MetaWeight*h.MetaScore + s.aboutness.AboutnessWeight*h.AboutnessScore
		ids = append(ids, id)
		hits = append(hits, *h)
	}

	// Popularity breaks blended-score ties.
	popularity := make(map[string]int, len(ids))
	songs, err := s.store.Songs(ctx, ids)
	if err != nil {
		slog.Warn("semantic: aboutness hydration failed, falling back to single space", "error", err)
		return nil
	}
	for _, song := range songs {
		popularity[song.ID] = song.Popularity
	}

	sortHits(hits, popularity)
	if len(hits) > s.topK {
		hits = hits[:s.topK]
	}
	return hits
}

// validVector reports whether vec is usable: non-empty, finite throughout,
// and matching the provider's declared dimensionality when known.
func (s *Searcher) validVector(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	if dims := s.provider.Dimensions(); dims > 0 && len(vec) != dims {
		return false
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// sortHits orders by score descending; ties fall back to popularity
// descending (when supplied) and then song ID for determinism.
func sortHits(hits []Hit, popularity map[string]int) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if popularity != nil && popularity[hits[i].SongID] != popularity[hits[j].SongID] {
			return popularity[hits[i].SongID] > popularity[hits[j].SongID]
		}
		return hits[i].SongID < hits[j].SongID
	})
}

// cosineSimilarity returns the exact cosine similarity of two equal-length
// vectors, or 0 when either has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
