package storno

import "context"

// DecisionSink receives resolved requests for admin-side search and audit.
// Best effort: sink failures are logged and never affect the financial
// transition.
type DecisionSink interface {
	IndexDecision(ctx context.Context, req Request) error
}

// NopDecisionSink is used when no audit index is configured.
type NopDecisionSink struct{}

func (NopDecisionSink) IndexDecision(context.Context, Request) error { return nil }
