// Package mock provides an in-memory [catalog.Store] for tests.
//
// Nearest is implemented as a brute-force exact cosine scan, which makes the
// mock deterministic where a real ANN index is only approximate.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/lyricroom/songmatch/pkg/catalog"
)

// Compile-time assertion that Store satisfies the catalog.Store interface.
var _ catalog.Store = (*Store)(nil)

// Store is a thread-safe, in-memory [catalog.Store]. The zero value is ready
// to use.
type Store struct {
	mu    sync.RWMutex
	songs map[string]catalog.Song

	// NearestErr, when non-nil, is returned by every Nearest call. Useful for
	// exercising the orchestrator's strategy-local failure handling.
	NearestErr error
}

// New returns an initialised [Store] pre-loaded with the given songs.
func New(songs ...catalog.Song) *Store {
	s := &Store{songs: make(map[string]catalog.Song, len(songs))}
	for _, song := range songs {
		s.songs[song.ID] = song
	}
	return s
}

// Add inserts or replaces a song.
func (s *Store) Add(song catalog.Song) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.songs == nil {
		s.songs = make(map[string]catalog.Song)
	}
	s.songs[song.ID] = song
}

// Song implements [catalog.Store.Song].
func (s *Store) Song(ctx context.Context, id string) (catalog.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	song, ok := s.songs[id]
	if !ok {
		return catalog.Song{}, catalog.ErrNotFound
	}
	return song, nil
}

// Songs implements [catalog.Store.Songs]. Unknown IDs are skipped.
func (s *Store) Songs(ctx context.Context, ids []string) ([]catalog.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]catalog.Song, 0, len(ids))
	for _, id := range ids {
		if song, ok := s.songs[id]; ok {
			result = append(result, song)
		}
	}
	return result, nil
}

// Active implements [catalog.Store.Active].
func (s *Store) Active(ctx context.Context) ([]catalog.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []catalog.Song
	for _, song := range s.songs {
		if !song.Placeholder {
			result = append(result, song)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// TopByPopularity implements [catalog.Store.TopByPopularity].
func (s *Store) TopByPopularity(ctx context.Context, limit int) ([]catalog.Song, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Popularity > active[j].Popularity
	})
	if len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// Nearest implements [catalog.Store.Nearest] with an exact cosine scan over
// every song carrying a vector in the requested space. Placeholder songs are
// deliberately NOT excluded, matching the interface contract.
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int, space catalog.Space) ([]catalog.Neighbor, error) {
	if s.NearestErr != nil {
		return nil, s.NearestErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var neighbors []catalog.Neighbor
	for _, song := range s.songs {
		vec := song.Embedding
		if space == catalog.SpaceAboutness {
			vec = song.AboutnessEmbedding
		}
		if len(vec) == 0 || len(vec) != len(embedding) {
			continue
		}
		neighbors = append(neighbors, catalog.Neighbor{
			SongID:   song.ID,
			Distance: 1 - cosine(embedding, vec),
		})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].SongID < neighbors[j].SongID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// CountActive implements [catalog.Store.CountActive].
func (s *Store) CountActive(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, song := range s.songs {
		if !song.Placeholder {
			n++
		}
	}
	return n, nil
}

// Ping implements [catalog.Store.Ping]. It always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// cosine returns the cosine similarity between two equal-length vectors.
func cosine(a, b []float32) float64 {
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
