package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	embedmock "github.com/lyricroom/songmatch/pkg/provider/embeddings/mock"
)

func TestFailover_PrimaryHealthy(t *testing.T) {
	primary := embedmock.New(4)
	fallback := embedmock.New(4)
	f := NewFailover(primary, "primary", CircuitBreakerConfig{}, nil)
	f.AddFallback("fallback", fallback)

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("vector length = %d, want 4", len(vec))
	}
	if len(primary.EmbedCalls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.EmbedCalls))
	}
	if len(fallback.EmbedCalls) != 0 {
		t.Errorf("fallback calls = %d, want 0", len(fallback.EmbedCalls))
	}
}

func TestFailover_FallsBackOnError(t *testing.T) {
	primary := embedmock.New(4)
	primary.Err = errors.New("backend down")
	fallback := embedmock.New(4)
	f := NewFailover(primary, "primary", CircuitBreakerConfig{}, nil)
	f.AddFallback("fallback", fallback)

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("vector length = %d, want 4", len(vec))
	}
	if len(fallback.EmbedCalls) != 1 {
		t.Errorf("fallback calls = %d, want 1", len(fallback.EmbedCalls))
	}
}

func TestFailover_AllFail(t *testing.T) {
	primary := embedmock.New(4)
	primary.Err = errors.New("down")
	fallback := embedmock.New(4)
	fallback.Err = errors.New("also down")
	f := NewFailover(primary, "primary", CircuitBreakerConfig{}, nil)
	f.AddFallback("fallback", fallback)

	_, err := f.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}
}

func TestFailover_OpenBreakerSkipsBackend(t *testing.T) {
	primary := embedmock.New(4)
	primary.Err = errors.New("down")
	fallback := embedmock.New(4)
	f := NewFailover(primary, "primary", CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	}, nil)
	f.AddFallback("fallback", fallback)

	// Two failures open the primary's breaker.
	for i := 0; i < 2; i++ {
		if _, err := f.Embed(context.Background(), "hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	callsBefore := len(primary.EmbedCalls)

	// Subsequent calls must not touch the primary.
	if _, err := f.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.EmbedCalls) != callsBefore {
		t.Errorf("primary calls = %d, want unchanged %d (breaker open)",
			len(primary.EmbedCalls), callsBefore)
	}
	if len(fallback.EmbedCalls) != 3 {
		t.Errorf("fallback calls = %d, want 3", len(fallback.EmbedCalls))
	}
}

func TestFailover_EmbedBatch(t *testing.T) {
	primary := embedmock.New(4)
	primary.Err = errors.New("down")
	fallback := embedmock.New(4)
	f := NewFailover(primary, "primary", CircuitBreakerConfig{}, nil)
	f.AddFallback("fallback", fallback)

	vecs, err := f.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("vectors = %d, want 2", len(vecs))
	}
}

func TestFailover_ReportsPrimaryIdentity(t *testing.T) {
	primary := embedmock.New(8)
	f := NewFailover(primary, "primary", CircuitBreakerConfig{}, nil)
	f.AddFallback("fallback", embedmock.New(4))

	if f.Dimensions() != 8 {
		t.Errorf("Dimensions() = %d, want primary's 8", f.Dimensions())
	}
	if f.ModelID() != "mock-embed" {
		t.Errorf("ModelID() = %q, want primary's", f.ModelID())
	}
}
