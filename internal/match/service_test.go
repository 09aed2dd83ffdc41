package match

import (
	"context"
	"errors"
	"testing"

	"github.com/lyricroom/songmatch/internal/lexicon"
	"github.com/lyricroom/songmatch/internal/moderation"
	"github.com/lyricroom/songmatch/internal/semantic"
	"github.com/lyricroom/songmatch/pkg/catalog"
	catalogmock "github.com/lyricroom/songmatch/pkg/catalog/mock"
	embedmock "github.com/lyricroom/songmatch/pkg/provider/embeddings/mock"
)

// failingModerator always errors, exercising the absorb-and-proceed policy.
type failingModerator struct{}

func (failingModerator) Moderate(ctx context.Context, text string) (moderation.Decision, error) {
	return moderation.Decision{}, errors.New("moderation service down")
}

// flaggingModerator allows the text but reports a category, without
// substitution.
type flaggingModerator struct{}

func (flaggingModerator) Moderate(ctx context.Context, text string) (moderation.Decision, error) {
	return moderation.Decision{
		Allowed:    true,
		Category:   moderation.CategoryAdult,
		Confidence: 0.8,
	}, nil
}

func newService(t *testing.T, moderator moderation.Moderator) *Service {
	t.Helper()
	store := catalogmock.New(
		catalog.Song{ID: "s1", Title: "Purple Rain", Popularity: 100},
		catalog.Song{ID: "s2", Title: "Sunshine Pop", Popularity: 50},
	)
	lex := lexicon.New(map[string][]string{
		"purple rain":  {"s1"},
		"darn sunrise": {"s2"},
	})
	searcher := semantic.New(embedmock.New(4), store)
	orch := NewOrchestrator(lex, searcher, store, Config{}, nil)
	return NewService(orch, moderator, nil)
}

func TestService_NoModerator(t *testing.T) {
	svc := newService(t, nil)

	resp, err := svc.Match(context.Background(), Request{Text: "purple rain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Blocked != nil {
		t.Fatalf("blocked = %+v, want nil", resp.Blocked)
	}
	if resp.Result == nil || resp.Result.Primary.Song.ID != "s1" {
		t.Fatalf("result = %+v, want primary s1", resp.Result)
	}
	if resp.Result.Explanation.Moderation != nil {
		t.Errorf("annotation = %+v, want none without a moderator", resp.Result.Explanation.Moderation)
	}
}

func TestService_HardBlock(t *testing.T) {
	svc := newService(t, &moderation.Blocklist{Block: []string{"slur"}})

	resp, err := svc.Match(context.Background(), Request{Text: "play that slur song"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result != nil {
		t.Fatalf("result = %+v, want nil on hard block", resp.Result)
	}
	if resp.Blocked == nil {
		t.Fatal("blocked decision missing")
	}
	if resp.Blocked.Allowed {
		t.Error("blocked decision reports allowed")
	}
	if resp.Blocked.Category != moderation.CategoryHate {
		t.Errorf("category = %q, want hate", resp.Blocked.Category)
	}
}

func TestService_SubstitutionMatchesAndAnnotates(t *testing.T) {
	svc := newService(t, &moderation.Blocklist{
		Replace: map[string]string{"damn": "darn"},
	})

	resp, err := svc.Match(context.Background(), Request{Text: "damn sunrise"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result == nil {
		t.Fatal("result missing")
	}
	// The substituted text "darn sunrise" hits the lexicon.
	if resp.Result.Primary.Song.ID != "s2" {
		t.Errorf("primary = %q, want s2 via substituted text", resp.Result.Primary.Song.ID)
	}
	ann := resp.Result.Explanation.Moderation
	if ann == nil {
		t.Fatal("moderation annotation missing")
	}
	if !ann.WasFiltered {
		t.Error("annotation.WasFiltered = false, want true")
	}
	if ann.OriginalText != "damn sunrise" {
		t.Errorf("original text = %q, want the pre-substitution text", ann.OriginalText)
	}
	if ann.Category != moderation.CategoryProfanity {
		t.Errorf("category = %q, want profanity", ann.Category)
	}
}

func TestService_ModeratorFailureProceedsUnmoderated(t *testing.T) {
	svc := newService(t, failingModerator{})

	resp, err := svc.Match(context.Background(), Request{Text: "purple rain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result == nil || resp.Result.Primary.Song.ID != "s1" {
		t.Fatalf("result = %+v, want primary s1 despite moderator failure", resp.Result)
	}
	if resp.Result.Explanation.Moderation != nil {
		t.Errorf("annotation = %+v, want none when moderation failed", resp.Result.Explanation.Moderation)
	}
}

func TestService_FlaggedButCleanAnnotatesWithoutFilter(t *testing.T) {
	svc := newService(t, flaggingModerator{})

	resp, err := svc.Match(context.Background(), Request{Text: "purple rain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ann := resp.Result.Explanation.Moderation
	if ann == nil {
		t.Fatal("moderation annotation missing")
	}
	if ann.WasFiltered {
		t.Error("annotation.WasFiltered = true, want false")
	}
	if ann.Category != moderation.CategoryAdult {
		t.Errorf("category = %q, want adult", ann.Category)
	}
	// The original text still matched.
	if resp.Result.Primary.Song.ID != "s1" {
		t.Errorf("primary = %q, want s1", resp.Result.Primary.Song.ID)
	}
}

func TestService_AllowAllPassthrough(t *testing.T) {
	svc := newService(t, moderation.AllowAll{})

	resp, err := svc.Match(context.Background(), Request{Text: "purple rain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Blocked != nil {
		t.Fatalf("blocked = %+v, want nil", resp.Blocked)
	}
	if resp.Result.Explanation.Moderation != nil {
		t.Errorf("annotation = %+v, want none from allow-all", resp.Result.Explanation.Moderation)
	}
}

func TestService_ErrorWrapped(t *testing.T) {
	// Empty catalog: the orchestrator's fatal error must surface wrapped.
	store := catalogmock.New()
	searcher := semantic.New(embedmock.New(4), store)
	orch := NewOrchestrator(lexicon.New(nil), searcher, store, Config{}, nil)
	svc := NewService(orch, nil, nil)

	_, err := svc.Match(context.Background(), Request{Text: "anything"})
	if !errors.Is(err, ErrCatalogEmpty) {
		t.Fatalf("err = %v, want ErrCatalogEmpty", err)
	}
}
