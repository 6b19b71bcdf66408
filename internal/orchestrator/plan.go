package orchestrator

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/sessionlens/sessiond/internal/engine"
)

// Actions the decision tree can select.
const (
	ActionDocumentSession  = "document_session"
	ActionAnalyzePatterns  = "analyze_patterns"
	ActionMapRelationships = "map_relationships"
	ActionDeepAnalysis     = "deep_analysis"
	ActionMonitor          = "monitor"
)

// budgetFractions maps each action to its share of the configured maximum
// token budget.
var budgetFractions = map[string]float64{
	ActionDocumentSession:  0.6,
	ActionAnalyzePatterns:  0.3,
	ActionMapRelationships: 0.3,
	ActionDeepAnalysis:     0.4,
	ActionMonitor:          0.4,
}

// decisionRule is one branch of the decision tree. Rules are evaluated in
// declaration order and the first match wins.
type decisionRule struct {
	action     string
	match      func(f factorScores) bool
	confidence func(f factorScores) float64
}

// decisionTree returns the priority-ordered branches. The final monitor
// branch always matches.
func decisionTree() []decisionRule {
	return []decisionRule{
		{
			action: ActionDocumentSession,
			match: func(f factorScores) bool {
				return f.DocumentationNeed > 80 && f.SessionState > 70
			},
			confidence: func(f factorScores) float64 {
				return (f.DocumentationNeed + f.SessionState) / 200
			},
		},
		{
			action: ActionAnalyzePatterns,
			match: func(f factorScores) bool {
				return f.PatternValue > 70 && f.SemanticComplexity > 75
			},
			confidence: func(f factorScores) float64 {
				return (f.PatternValue + f.SemanticComplexity) / 200
			},
		},
		{
			action: ActionMapRelationships,
			match: func(f factorScores) bool {
				return f.RelationshipValue > 60
			},
			confidence: func(f factorScores) float64 {
				return f.RelationshipValue / 100
			},
		},
		{
			action: ActionDeepAnalysis,
			match: func(f factorScores) bool {
				return f.SemanticComplexity > 70
			},
			confidence: func(f factorScores) float64 {
				return f.SemanticComplexity / 100
			},
		},
		{
			action:     ActionMonitor,
			match:      func(factorScores) bool { return true },
			confidence: func(factorScores) float64 { return 0.5 },
		},
	}
}

// stepTemplates holds the fixed per-action plans. Costs are sized so every
// default-budget plan completes under 80% of its budget and keeps its
// detailed results.
var stepTemplates = map[string][]engine.PlanStep{
	ActionDocumentSession: {
		{Step: 1, Action: "gather_session_context", Agent: "semantic", EstimatedCost: 800},
		{Step: 2, Action: "assess_resolution", Agent: "sessionstate", EstimatedCost: 600, DependsOn: []int{1}},
		{Step: 3, Action: "draft_documentation", Agent: "orchestrator", EstimatedCost: 1600, DependsOn: []int{1, 2}},
		{Step: 4, Action: "extract_key_insights", Agent: "orchestrator", EstimatedCost: 600, DependsOn: []int{3}},
	},
	ActionAnalyzePatterns: {
		{Step: 1, Action: "extract_features", Agent: "semantic", EstimatedCost: 500},
		{Step: 2, Action: "correlate_errors", Agent: "sessionstate", EstimatedCost: 500, DependsOn: []int{1}},
		{Step: 3, Action: "summarize_patterns", Agent: "orchestrator", EstimatedCost: 600, DependsOn: []int{1, 2}},
	},
	ActionMapRelationships: {
		{Step: 1, Action: "score_candidates", Agent: "relationship", EstimatedCost: 700},
		{Step: 2, Action: "cluster_relationships", Agent: "relationship", EstimatedCost: 500, DependsOn: []int{1}},
		{Step: 3, Action: "summarize_relationships", Agent: "orchestrator", EstimatedCost: 400, DependsOn: []int{2}},
	},
	ActionDeepAnalysis: {
		{Step: 1, Action: "structural_analysis", Agent: "semantic", EstimatedCost: 600},
		{Step: 2, Action: "drift_analysis", Agent: "semantic", EstimatedCost: 500, DependsOn: []int{1}},
		{Step: 3, Action: "state_assessment", Agent: "sessionstate", EstimatedCost: 500},
		{Step: 4, Action: "synthesize_findings", Agent: "orchestrator", EstimatedCost: 700, DependsOn: []int{1, 2, 3}},
	},
	ActionMonitor: {
		{Step: 1, Action: "snapshot_state", Agent: "sessionstate", EstimatedCost: 300},
		{Step: 2, Action: "schedule_recheck", Agent: "orchestrator", EstimatedCost: 200, DependsOn: []int{1}},
	},
}

// decide walks the decision tree and returns the first matching branch.
func decide(f factorScores) (string, float64) {
	for _, rule := range decisionTree() {
		if rule.match(f) {
			return rule.action, clamp01(rule.confidence(f))
		}
	}
	// Unreachable: the monitor branch always matches.
	return ActionMonitor, 0.5
}

// buildPlan instantiates the fixed step template for the chosen action and
// assigns the per-action token budget.
func buildPlan(action string, confidence float64, maxBudget int) engine.DecisionPlan {
	steps := stepTemplates[action]
	plan := engine.DecisionPlan{
		ID:          uuid.NewString(),
		Action:      action,
		Steps:       make([]engine.PlanStep, len(steps)),
		TokenBudget: int(math.Round(budgetFractions[action] * float64(maxBudget))),
		Confidence:  confidence,
	}
	copy(plan.Steps, steps)
	return plan
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func stepLabel(step engine.PlanStep) string {
	return fmt.Sprintf("%d:%s", step.Step, step.Action)
}
