// Package observe provides application-wide observability primitives for the
// songmatch engine: OpenTelemetry metrics, tracing helpers, and structured
// logging enrichment.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all songmatch metrics.
const meterName = "github.com/lyricroom/songmatch"

// Metrics holds all OpenTelemetry metric instruments for the matching
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// MatchDuration tracks end-to-end match latency. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("outcome", ...)
	MatchDuration metric.Float64Histogram

	// EmbedDuration tracks embedding provider call latency.
	EmbedDuration metric.Float64Histogram

	// MatchRequests counts match calls by winning strategy and outcome.
	MatchRequests metric.Int64Counter

	// StrategyFallthroughs counts how often a strategy produced nothing and
	// the chain moved on. Use with attribute.String("from", ...).
	StrategyFallthroughs metric.Int64Counter

	// ModerationBlocks counts hard-blocked queries by category.
	ModerationBlocks metric.Int64Counter

	// ProviderErrors counts embedding provider errors by provider name.
	ProviderErrors metric.Int64Counter

	// LexiconPhrases tracks the number of phrases in the lexicon index.
	LexiconPhrases metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a chat-message matching pipeline dominated by one embedding call and one
// ANN query.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MatchDuration, err = m.Float64Histogram("songmatch.match.duration",
		metric.WithDescription("End-to-end match latency by strategy and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("songmatch.embed.duration",
		metric.WithDescription("Embedding provider call latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchRequests, err = m.Int64Counter("songmatch.match.requests",
		metric.WithDescription("Total match requests by winning strategy and outcome."),
	); err != nil {
		return nil, err
	}
	if met.StrategyFallthroughs, err = m.Int64Counter("songmatch.strategy.fallthroughs",
		metric.WithDescription("Strategies that produced no candidates, by strategy."),
	); err != nil {
		return nil, err
	}
	if met.ModerationBlocks, err = m.Int64Counter("songmatch.moderation.blocks",
		metric.WithDescription("Hard-blocked queries by moderation category."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("songmatch.provider.errors",
		metric.WithDescription("Embedding provider errors by provider name."),
	); err != nil {
		return nil, err
	}
	if met.LexiconPhrases, err = m.Int64UpDownCounter("songmatch.lexicon.phrases",
		metric.WithDescription("Number of phrases currently in the lexicon index."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordMatch records one completed match call with the standard attribute
// set.
func (m *Metrics) RecordMatch(ctx context.Context, strategy, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	)
	m.MatchRequests.Add(ctx, 1, attrs)
	m.MatchDuration.Record(ctx, seconds, attrs)
}

// RecordFallthrough records that a strategy produced no candidates.
func (m *Metrics) RecordFallthrough(ctx context.Context, from string) {
	m.StrategyFallthroughs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("from", from)))
}

// RecordModerationBlock records a hard-blocked query.
func (m *Metrics) RecordModerationBlock(ctx context.Context, category string) {
	m.ModerationBlocks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)))
}

// RecordProviderError records an embedding provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)))
}
