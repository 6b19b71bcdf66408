package orchestrator

import (
	"context"
	"fmt"

	"github.com/sessionlens/sessiond/internal/engine"
)

// analysisContext is the unified per-request view the decision phases read.
// It is owned exclusively by one in-flight request and never shared.
type analysisContext struct {
	session    *engine.Session
	candidates []*engine.Session
	intent     string

	semantic      *engine.SemanticProfile
	state         *engine.StateProfile
	relationships *engine.RelationshipSet
}

// buildContext invokes the analyzers gated by the feature flags. The
// relationship mapper additionally needs candidates to be present.
func (o *Orchestrator) buildContext(ctx context.Context, req engine.Request) (*analysisContext, error) {
	ac := &analysisContext{
		session:    req.Session,
		candidates: req.Candidates,
		intent:     req.Intent,
	}

	if o.cfg.Features.Semantic {
		res, err := o.semantic.Execute(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("semantic analysis: %w", err)
		}
		ac.semantic = res.Profile.(*engine.SemanticProfile)
	}
	if o.cfg.Features.State {
		res, err := o.state.Execute(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("state analysis: %w", err)
		}
		ac.state = res.Profile.(*engine.StateProfile)
	}
	if o.cfg.Features.Relationship && len(req.Candidates) > 0 {
		res, err := o.relationship.Execute(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("relationship mapping: %w", err)
		}
		ac.relationships = res.Profile.(*engine.RelationshipSet)
	}
	return ac, nil
}
