package moderation

import (
	"context"
	"testing"
)

func TestAllowAll(t *testing.T) {
	d, err := AllowAll{}.Moderate(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("allowed = false, want true")
	}
	if d.Category != CategoryNone {
		t.Errorf("category = %q, want none", d.Category)
	}
	if d.ReplacementText != "" {
		t.Errorf("replacement = %q, want empty", d.ReplacementText)
	}
}

func TestBlocklist_HardBlock(t *testing.T) {
	b := &Blocklist{Block: []string{"slur"}}

	d, err := b.Moderate(context.Background(), "play that SLUR track")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("allowed = true, want hard block")
	}
	if d.Category != CategoryHate {
		t.Errorf("category = %q, want hate", d.Category)
	}
}

func TestBlocklist_WholeWordsOnly(t *testing.T) {
	b := &Blocklist{Block: []string{"ass"}}

	// "assassin" contains the term but is not the whole word.
	d, err := b.Moderate(context.Background(), "the assassin theme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("allowed = false, want true for partial-word occurrence")
	}
}

func TestBlocklist_Substitution(t *testing.T) {
	b := &Blocklist{Replace: map[string]string{"damn": "darn"}}

	d, err := b.Moderate(context.Background(), "that damn good song")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("allowed = false, want true for substitution")
	}
	if d.ReplacementText != "that darn good song" {
		t.Errorf("replacement = %q, want %q", d.ReplacementText, "that darn good song")
	}
	if d.Category != CategoryProfanity {
		t.Errorf("category = %q, want profanity", d.Category)
	}
}

func TestBlocklist_CleanTextPassesUnchanged(t *testing.T) {
	b := &Blocklist{
		Block:   []string{"slur"},
		Replace: map[string]string{"damn": "darn"},
	}

	d, err := b.Moderate(context.Background(), "a perfectly clean sentence")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Category != CategoryNone || d.ReplacementText != "" {
		t.Errorf("decision = %+v, want clean pass", d)
	}
}

func TestBlocklist_BlockWinsOverReplace(t *testing.T) {
	b := &Blocklist{
		Block:   []string{"slur"},
		Replace: map[string]string{"slur": "xxxx"},
	}

	d, err := b.Moderate(context.Background(), "slur")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("allowed = true, want block to take precedence over replacement")
	}
}
