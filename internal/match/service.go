package match

import (
	"context"
	"fmt"

	"github.com/lyricroom/songmatch/internal/moderation"
	"github.com/lyricroom/songmatch/internal/observe"
)

// Service is the sole public entry point of the matching core. It runs the
// moderation gate as a pre-step, then hands the (possibly substituted) text
// to the orchestrator. Substituted text is indistinguishable from organic
// input downstream.
//
// Service is stateless per call and safe for concurrent use.
type Service struct {
	orchestrator *Orchestrator
	moderator    moderation.Moderator
	metrics      *observe.Metrics
}

// NewService wires the orchestrator behind the moderation gate. moderator
// may be nil to disable moderation; metrics may be nil to use the
// package-level default instruments.
func NewService(orchestrator *Orchestrator, moderator moderation.Moderator, metrics *observe.Metrics) *Service {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Service{
		orchestrator: orchestrator,
		moderator:    moderator,
		metrics:      metrics,
	}
}

// Match moderates and matches one chat message. It returns either a match
// result or a policy block in the [Response], and an error only for the
// orchestrator's single fatal condition.
//
// A moderation collaborator failure is absorbed: the original text proceeds
// to matching unannotated.
func (s *Service) Match(ctx context.Context, req Request) (*Response, error) {
	ctx, span := observe.StartSpan(ctx, "match.service")
	defer span.End()

	var annotation *moderation.Annotation
	if s.moderator != nil {
		decision, err := s.moderator.Moderate(ctx, req.Text)
		switch {
		case err != nil:
			observe.Logger(ctx).Warn("moderation failed, proceeding unmoderated", "error", err)

		case !decision.Allowed:
			observe.Logger(ctx).Info("query hard-blocked",
				"category", decision.Category, "user_id", req.UserID)
			s.metrics.RecordModerationBlock(ctx, string(decision.Category))
			return &Response{Blocked: &decision}, nil

		case decision.ReplacementText != "":
			annotation = &moderation.Annotation{
				Category:     decision.Category,
				WasFiltered:  true,
				OriginalText: req.Text,
			}
			req.Text = decision.ReplacementText

		case decision.Category != "" && decision.Category != moderation.CategoryNone:
			annotation = &moderation.Annotation{Category: decision.Category}
		}
	}

	result, err := s.orchestrator.Match(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	result.Explanation.Moderation = annotation
	return &Response{Result: result}, nil
}
