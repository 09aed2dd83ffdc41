package match

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lyricroom/songmatch/internal/lexicon"
	"github.com/lyricroom/songmatch/internal/observe"
	"github.com/lyricroom/songmatch/internal/semantic"
	"github.com/lyricroom/songmatch/pkg/catalog"
)

// Config holds the orchestrator's tunables. The zero value is usable; missing
// fields are replaced with defaults by [NewOrchestrator].
type Config struct {
	// FallbackLimit is how many songs the popularity fallback returns. Default: 3.
	FallbackLimit int

	// FallbackScore is the fixed low score assigned to popularity-fallback
	// candidates. Default: 0.1.
	FallbackScore float64

	// RecencyFloor is the minimum candidate count that must survive the
	// recency filter; below it the filter is skipped entirely. Default: 5.
	RecencyFloor int

	// DiversityThreshold is the confidence below which alternates are
	// selected. Default: 0.7.
	DiversityThreshold float64

	// MaxAlternates caps the alternate list. Default: 2.
	MaxAlternates int

	// Calibrator converts the sorted score list into a confidence value.
	Calibrator Calibrator
}

// applyDefaults fills zero-valued fields.
func (c *Config) applyDefaults() {
	if c.FallbackLimit <= 0 {
		c.FallbackLimit = 3
	}
	if c.FallbackScore <= 0 {
		c.FallbackScore = 0.1
	}
	if c.RecencyFloor <= 0 {
		c.RecencyFloor = 5
	}
	if c.DiversityThreshold <= 0 {
		c.DiversityThreshold = 0.7
	}
	if c.MaxAlternates <= 0 {
		c.MaxAlternates = 2
	}
	if c.Calibrator == (Calibrator{}) {
		c.Calibrator = NewCalibrator()
	}
}

// Orchestrator sequences the matching strategies into a fallback chain:
// lexicon, then semantic search, then popularity. Each strategy is attempted
// only when the previous one produced nothing, so a single call performs at
// most one embedding request and one ANN query (two on the aboutness path).
//
// The orchestrator is stateless per call and safe for concurrent use; the
// only shared mutable state is the lexicon index, which handles its own
// locking.
type Orchestrator struct {
	lexicon  *lexicon.Index
	searcher *semantic.Searcher
	store    catalog.Store
	cfg      Config
	metrics  *observe.Metrics
}

// NewOrchestrator wires the three strategies together. metrics may be nil,
// in which case the package-level default instruments are used.
func NewOrchestrator(lex *lexicon.Index, searcher *semantic.Searcher, store catalog.Store, cfg Config, metrics *observe.Metrics) *Orchestrator {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Orchestrator{
		lexicon:  lex,
		searcher: searcher,
		store:    store,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// Match runs the full fallback chain for one request and assembles the
// result. The only error it returns is [ErrCatalogEmpty] (or a wrapped store
// failure on the final fallback, where no further degradation exists); every
// strategy-local failure is absorbed and the chain moves on.
func (o *Orchestrator) Match(ctx context.Context, req Request) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "match.orchestrate")
	defer span.End()
	start := time.Now()

	candidates := o.lexiconCandidates(ctx, req.Text)
	strategy := StrategyPhrase

	if len(candidates) == 0 {
		o.metrics.RecordFallthrough(ctx, string(StrategyPhrase))
		candidates = o.semanticCandidates(ctx, req.Text)
		strategy = StrategyEmbedding
		if len(candidates) > 0 && candidates[0].Strategy == StrategyAboutness {
			strategy = StrategyAboutness
		}
	}

	if len(candidates) == 0 {
		o.metrics.RecordFallthrough(ctx, string(StrategyEmbedding))
		var err error
		candidates, err = o.popularityFallback(ctx, req.AllowExplicit)
		if err != nil {
			o.metrics.RecordMatch(ctx, string(StrategyPopularity), "error", time.Since(start).Seconds())
			return nil, err
		}
		strategy = StrategyPopularity
	}

	candidates, refetched, err := o.postFilter(ctx, candidates, req)
	if err != nil {
		o.metrics.RecordMatch(ctx, string(strategy), "error", time.Since(start).Seconds())
		return nil, err
	}
	if refetched {
		strategy = StrategyPopularity
	}

	sortCandidates(candidates)

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Score
	}
	confidence := o.cfg.Calibrator.Confidence(scores)

	primary := candidates[0]
	var alternates []Candidate
	if confidence < o.cfg.DiversityThreshold && len(candidates) > 1 {
		relaxed := o.historySpansDecades(ctx, req.RecentSongIDs)
		alternates = selectAlternates(primary, candidates[1:], o.cfg.MaxAlternates, relaxed)
	}

	observe.Logger(ctx).Debug("match complete",
		"strategy", strategy,
		"song_id", primary.Song.ID,
		"confidence", confidence,
		"candidates", len(candidates),
		"alternates", len(alternates),
		"user_id", req.UserID,
	)
	o.metrics.RecordMatch(ctx, string(strategy), "ok", time.Since(start).Seconds())

	return &Result{
		Primary:    primary,
		Alternates: alternates,
		Confidence: confidence,
		Strategy:   strategy,
		Explanation: Explanation{
			MatchedPhrase: primary.Reason.MatchedPhrase,
			Similarity:    primary.Reason.Similarity,
		},
	}, nil
}

// lexiconCandidates hydrates lexicon matches into scored candidates. A
// hydration failure is strategy-local: it logs and returns nil so the chain
// falls through to semantic search.
func (o *Orchestrator) lexiconCandidates(ctx context.Context, text string) []Candidate {
	matches := o.lexicon.FindPhraseMatches(text)
	if len(matches) == 0 {
		return nil
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, m := range matches {
		for _, id := range m.SongIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	songs, err := o.store.Songs(ctx, ids)
	if err != nil {
		observe.Logger(ctx).Warn("lexicon hydration failed, falling through", "error", err)
		return nil
	}
	byID := make(map[string]catalog.Song, len(songs))
	for _, s := range songs {
		byID[s.ID] = s
	}

	// Matches are sorted by confidence descending, so the first candidate per
	// song carries its best score.
	var candidates []Candidate
	taken := make(map[string]struct{})
	for _, m := range matches {
		tag := StrategyPhrase
		if m.Type == lexicon.MatchExact {
			tag = StrategyExact
		}
		for _, id := range m.SongIDs {
			if _, ok := taken[id]; ok {
				continue
			}
			song, ok := byID[id]
			if !ok || song.Placeholder {
				continue
			}
			taken[id] = struct{}{}
			candidates = append(candidates, Candidate{
				Song:     song,
				Score:    m.Confidence,
				Strategy: tag,
				Reason:   Reason{MatchedPhrase: m.Phrase},
			})
		}
	}
	return candidates
}

// semanticCandidates hydrates semantic hits into scored candidates,
// defensively re-filtering placeholders the searcher does not exclude.
func (o *Orchestrator) semanticCandidates(ctx context.Context, text string) []Candidate {
	hits := o.searcher.Search(ctx, text)
	if len(hits) == 0 {
		return nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.SongID
	}
	songs, err := o.store.Songs(ctx, ids)
	if err != nil {
		observe.Logger(ctx).Warn("semantic hydration failed, falling through", "error", err)
		return nil
	}
	byID := make(map[string]catalog.Song, len(songs))
	for _, s := range songs {
		byID[s.ID] = s
	}

	var candidates []Candidate
	for _, h := range hits {
		song, ok := byID[h.SongID]
		if !ok || song.Placeholder {
			continue
		}
		tag := StrategyEmbedding
		if h.Aboutness {
			tag = StrategyAboutness
		}
		candidates = append(candidates, Candidate{
			Song:     song,
			Score:    h.Score,
			Strategy: tag,
			Reason: Reason{
				Similarity:     h.Score,
				MetaScore:      h.MetaScore,
				AboutnessScore: h.AboutnessScore,
			},
		})
	}
	return candidates
}

// popularityFallback returns the top non-placeholder songs by popularity at a
// fixed low score. It respects the explicit filter so the non-emptiness
// guarantee cannot smuggle disallowed content back in.
func (o *Orchestrator) popularityFallback(ctx context.Context, allowExplicit bool) ([]Candidate, error) {
	fetch := o.cfg.FallbackLimit
	if !allowExplicit {
		// Headroom so the explicit filter cannot empty the fixed top slice.
		fetch = o.cfg.FallbackLimit * 10
	}
	songs, err := o.store.TopByPopularity(ctx, fetch)
	if err != nil {
		// Final strategy: there is nothing left to degrade to.
		return nil, fmt.Errorf("match: popularity fallback: %w", err)
	}

	var candidates []Candidate
	for _, song := range songs {
		if song.Placeholder {
			continue
		}
		if !allowExplicit && isExplicit(song) {
			continue
		}
		candidates = append(candidates, Candidate{
			Song:     song,
			Score:    o.cfg.FallbackScore,
			Strategy: StrategyPopularity,
		})
		if len(candidates) == o.cfg.FallbackLimit {
			break
		}
	}
	if len(candidates) == 0 {
		return nil, ErrCatalogEmpty
	}
	return candidates, nil
}

// postFilter applies the recency and explicit filters and enforces the
// non-emptiness guarantee. The returned bool reports whether the candidate
// set was re-fetched from the popularity fallback.
func (o *Orchestrator) postFilter(ctx context.Context, candidates []Candidate, req Request) ([]Candidate, bool, error) {
	// Recency: skipped entirely when it would filter below the floor.
	if len(req.RecentSongIDs) > 0 {
		recent := make(map[string]struct{}, len(req.RecentSongIDs))
		for _, id := range req.RecentSongIDs {
			recent[id] = struct{}{}
		}
		filtered := candidates[:0:0]
		for _, c := range candidates {
			if _, ok := recent[c.Song.ID]; !ok {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) >= o.cfg.RecencyFloor {
			candidates = filtered
		}
	}

	if !req.AllowExplicit {
		filtered := candidates[:0:0]
		for _, c := range candidates {
			if !isExplicit(c.Song) {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	if len(candidates) == 0 {
		refetched, err := o.popularityFallback(ctx, req.AllowExplicit)
		return refetched, true, err
	}
	return candidates, false, nil
}

// historySpansDecades reports whether the user's recent history covers at
// least two distinct decades, which relaxes the diversity constraint. A
// hydration failure keeps the constraint in force.
func (o *Orchestrator) historySpansDecades(ctx context.Context, recentIDs []string) bool {
	if len(recentIDs) == 0 {
		return false
	}
	songs, err := o.store.Songs(ctx, recentIDs)
	if err != nil {
		observe.Logger(ctx).Debug("recent history hydration failed", "error", err)
		return false
	}
	return decadesSpanned(songs) >= 2
}

// isExplicit reports whether the song carries any disallowed content tag.
func isExplicit(song catalog.Song) bool {
	for _, tag := range song.Tags {
		lower := strings.ToLower(tag)
		for _, bad := range explicitTags {
			if lower == bad {
				return true
			}
		}
	}
	return false
}

// sortCandidates orders by score descending; ties fall back to popularity
// descending and then song ID for deterministic output.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Song.Popularity != candidates[j].Song.Popularity {
			return candidates[i].Song.Popularity > candidates[j].Song.Popularity
		}
		return candidates[i].Song.ID < candidates[j].Song.ID
	})
}
