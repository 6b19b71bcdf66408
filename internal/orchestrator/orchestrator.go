// Package orchestrator coordinates the three analyzers for one request:
// it builds a unified context, scores decision factors, walks a
// priority-ordered decision tree, and executes the chosen plan within a
// token budget. A step failure halts the plan but never escapes the
// orchestrator as a panic or unwrapped error; callers always receive a
// Result carrying whatever completed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
)

// Orchestrator runs the full decision pipeline. Safe for concurrent use;
// all per-request state lives on the stack.
type Orchestrator struct {
	cfg          config.EngineConfig
	semantic     engine.Analyzer
	state        engine.Analyzer
	relationship engine.Analyzer
	log          *logging.Logger
	now          func() time.Time

	invocations atomic.Uint64
	failures    atomic.Uint64
}

// New wires the orchestrator to its three analyzers.
func New(cfg config.EngineConfig, semantic, state, relationship engine.Analyzer, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Orchestrator{
		cfg:          cfg,
		semantic:     semantic,
		state:        state,
		relationship: relationship,
		log:          log.Named("orchestrator"),
		now:          time.Now,
	}
}

// Metrics reports the orchestrator's own counters.
func (o *Orchestrator) Metrics() engine.AnalyzerMetrics {
	return engine.AnalyzerMetrics{
		Invocations: o.invocations.Load(),
		Failures:    o.failures.Load(),
	}
}

// Orchestrate runs one request end to end. It returns an error only for
// input validation failures; execution failures come back inside the
// Result with Success false.
func (o *Orchestrator) Orchestrate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	o.invocations.Add(1)
	started := o.now()

	if err := engine.ValidateSession(req.Session); err != nil {
		o.failures.Add(1)
		return nil, fmt.Errorf("orchestrate: %w", err)
	}

	ac, err := o.buildContext(ctx, req)
	if err != nil {
		o.failures.Add(1)
		return nil, err
	}

	factors := evaluateFactors(ac, o.now())
	action, confidence := decide(factors)
	plan := buildPlan(action, confidence, o.cfg.MaxTokenBudget)

	o.log.Info(ctx, "decision made",
		zap.String("session_id", req.Session.SessionID),
		zap.String("action", action),
		zap.Float64("confidence", confidence),
		zap.String("plan_id", plan.ID),
		zap.Int("token_budget", plan.TokenBudget))

	stepResults, tokensUsed, execErr := o.executePlan(ctx, plan, ac)
	if execErr != nil {
		o.failures.Add(1)
	}
	result := o.optimizeResult(plan, ac, stepResults, tokensUsed, execErr, o.now().Sub(started))
	return result, nil
}

// executePlan runs the plan's steps strictly in declared order. The first
// failing step halts execution; results of completed steps are retained.
func (o *Orchestrator) executePlan(ctx context.Context, plan engine.DecisionPlan, ac *analysisContext) ([]engine.StepResult, int, error) {
	var results []engine.StepResult
	tokensUsed := 0

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return results, tokensUsed, fmt.Errorf("plan %s halted at step %s: %w", plan.ID, stepLabel(step), err)
		}
		output, err := o.runStep(step, ac)
		if err != nil {
			return results, tokensUsed, fmt.Errorf("plan %s failed at step %s: %w", plan.ID, stepLabel(step), err)
		}
		tokensUsed += step.EstimatedCost
		results = append(results, engine.StepResult{
			Step:    step.Step,
			Action:  step.Action,
			Success: true,
			Output:  output,
			Cost:    step.EstimatedCost,
		})
	}
	return results, tokensUsed, nil
}

var errContextMissing = errors.New("required analysis context missing")

// runStep produces a step's output from the already-built context. Steps
// synthesize; the expensive analysis happened during context building.
func (o *Orchestrator) runStep(step engine.PlanStep, ac *analysisContext) (string, error) {
	switch step.Action {
	case "gather_session_context", "extract_features", "structural_analysis":
		if ac.semantic == nil {
			return "", fmt.Errorf("%s: %w", step.Action, errContextMissing)
		}
		s := ac.semantic.Structure
		return fmt.Sprintf("%d messages, %d turns, %d questions, %d code blocks, %d errors",
			s.MessageCount, s.TurnTransitions, s.QuestionCount, s.CodeBlockCount, s.ErrorCount), nil

	case "drift_analysis":
		if ac.semantic == nil {
			return "", fmt.Errorf("%s: %w", step.Action, errContextMissing)
		}
		return fmt.Sprintf("avg drift %.2f across %d drift points",
			ac.semantic.Drift.AvgDrift, len(ac.semantic.Drift.DriftPoints)), nil

	case "assess_resolution", "state_assessment", "correlate_errors", "snapshot_state":
		if ac.state == nil {
			return "", fmt.Errorf("%s: %w", step.Action, errContextMissing)
		}
		return fmt.Sprintf("state %s (%.2f), documentation value %d",
			ac.state.State, ac.state.Confidence, ac.state.DocumentationValue), nil

	case "score_candidates":
		if ac.relationships == nil {
			return "", fmt.Errorf("%s: %w", step.Action, errContextMissing)
		}
		return fmt.Sprintf("%d relationships above threshold from %d candidates",
			len(ac.relationships.Relationships), len(ac.candidates)), nil

	case "cluster_relationships":
		if ac.relationships == nil {
			return "", fmt.Errorf("%s: %w", step.Action, errContextMissing)
		}
		return fmt.Sprintf("%d clusters formed", len(ac.relationships.Clusters)), nil

	case "draft_documentation", "summarize_patterns", "summarize_relationships",
		"synthesize_findings", "extract_key_insights":
		return o.synthesize(ac), nil

	case "schedule_recheck":
		return "session queued for periodic re-analysis", nil

	default:
		return "", fmt.Errorf("no handler for step action %q", step.Action)
	}
}

// synthesize folds the available context into one line of prose.
func (o *Orchestrator) synthesize(ac *analysisContext) string {
	var parts []string
	if ac.state != nil {
		parts = append(parts, fmt.Sprintf("session is %s", ac.state.State))
	}
	if ac.semantic != nil && len(ac.semantic.Features.Topics) > 0 {
		parts = append(parts, fmt.Sprintf("dominant topic %s", ac.semantic.Features.Topics[0].Topic))
	}
	if ac.relationships != nil {
		parts = append(parts, fmt.Sprintf("%d related sessions", len(ac.relationships.Relationships)))
	}
	if len(parts) == 0 {
		return "no analysis context available"
	}
	return strings.Join(parts, "; ")
}

// optimizeResult shapes the canonical response. Step-level detail is kept
// only when cumulative cost stayed under 80% of the plan's budget; key
// insights are capped at five.
func (o *Orchestrator) optimizeResult(plan engine.DecisionPlan, ac *analysisContext, steps []engine.StepResult, tokensUsed int, execErr error, elapsed time.Duration) *engine.Result {
	result := &engine.Result{
		Success: execErr == nil,
		Action:  plan.Action,
		Summary: fmt.Sprintf("%s: %d/%d steps completed", plan.Action, len(steps), len(plan.Steps)),
		Metadata: engine.ResultMetadata{
			ExecutionTime:  elapsed,
			TokensUsed:     tokensUsed,
			StepsCompleted: len(steps),
		},
	}
	if execErr != nil {
		result.Error = execErr.Error()
	}

	if ac.semantic != nil {
		result.KeyInsights = append(result.KeyInsights, ac.semantic.Insights...)
	}
	if ac.state != nil {
		result.KeyInsights = append(result.KeyInsights, ac.state.Evidence...)
		result.Recommendations = append(result.Recommendations, ac.state.Recommendations...)
		result.Recommendations = append(result.Recommendations, ac.state.NextActions...)
	}
	if len(result.KeyInsights) > 5 {
		result.KeyInsights = result.KeyInsights[:5]
	}

	if float64(tokensUsed) < 0.8*float64(plan.TokenBudget) {
		result.DetailedResults = steps
	}
	return result
}
