package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lyricroom/songmatch/internal/observe"
	"github.com/lyricroom/songmatch/pkg/provider/embeddings"
)

// ErrAllProvidersFailed is returned when every embedding backend in a
// [Failover] fails or has an open circuit breaker.
var ErrAllProvidersFailed = errors.New("all embedding providers failed")

// Ensure Failover implements embeddings.Provider.
var _ embeddings.Provider = (*Failover)(nil)

// entry pairs an embedding backend with its dedicated circuit breaker.
type entry struct {
	name     string
	provider embeddings.Provider
	breaker  *CircuitBreaker
}

// Failover is an [embeddings.Provider] that wraps a primary backend and zero
// or more fallbacks, each behind its own circuit breaker. When the primary
// fails (or its breaker is open) the next healthy fallback is tried in
// registration order.
//
// All backends must produce vectors in the same embedding space and
// dimension — mixing spaces silently corrupts ANN results. Dimensions and
// ModelID report the primary's values.
//
// Failover is safe for concurrent use.
type Failover struct {
	entries []entry
	cbCfg   CircuitBreakerConfig
	metrics *observe.Metrics
}

// NewFailover creates a [Failover] with primary as the first backend.
// metrics may be nil to use the package-level default instruments.
func NewFailover(primary embeddings.Provider, name string, cbCfg CircuitBreakerConfig, metrics *observe.Metrics) *Failover {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	cfg := cbCfg
	cfg.Name = name
	return &Failover{
		entries: []entry{{
			name:     name,
			provider: primary,
			breaker:  NewCircuitBreaker(cfg),
		}},
		cbCfg:   cbCfg,
		metrics: metrics,
	}
}

// AddFallback appends a fallback backend, tried after all earlier entries.
func (f *Failover) AddFallback(name string, provider embeddings.Provider) {
	cfg := f.cbCfg
	cfg.Name = name
	f.entries = append(f.entries, entry{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(cfg),
	})
}

// Embed implements embeddings.Provider, trying each backend in order.
func (f *Failover) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for i := range f.entries {
		e := &f.entries[i]
		var vec []float32
		start := time.Now()
		err := e.breaker.Execute(func() error {
			var innerErr error
			vec, innerErr = e.provider.Embed(ctx, text)
			return innerErr
		})
		if err == nil {
			f.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())
			return vec, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping embedding backend (circuit open)", "provider", e.name)
		} else {
			f.metrics.RecordProviderError(ctx, e.name)
			slog.Warn("embedding backend failed, trying next",
				"provider", e.name, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// EmbedBatch implements embeddings.Provider, trying each backend in order.
func (f *Failover) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for i := range f.entries {
		e := &f.entries[i]
		var vecs [][]float32
		err := e.breaker.Execute(func() error {
			var innerErr error
			vecs, innerErr = e.provider.EmbedBatch(ctx, texts)
			return innerErr
		})
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !errors.Is(err, ErrCircuitOpen) {
			f.metrics.RecordProviderError(ctx, e.name)
			slog.Warn("embedding backend failed, trying next",
				"provider", e.name, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// Dimensions implements embeddings.Provider, reporting the primary's value.
func (f *Failover) Dimensions() int {
	return f.entries[0].provider.Dimensions()
}

// ModelID implements embeddings.Provider, reporting the primary's value.
func (f *Failover) ModelID() string {
	return f.entries[0].provider.ModelID()
}
