package orchestrator

import (
	"strings"
	"time"

	"github.com/sessionlens/sessiond/internal/engine"
)

// factorScores holds the seven decision factors, each on a 0-100 scale.
// Every factor is scored independently; missing context scores zero for
// its factor rather than failing the request.
type factorScores struct {
	SessionState       float64 `json:"session_state"`
	UserIntent         float64 `json:"user_intent"`
	SemanticComplexity float64 `json:"semantic_complexity"`
	PatternValue       float64 `json:"pattern_value"`
	DocumentationNeed  float64 `json:"documentation_need"`
	RelationshipValue  float64 `json:"relationship_value"`
	Temporal           float64 `json:"temporal"`
}

// stateBaseScores maps a lifecycle state to how much attention it deserves
// before confidence scaling. Completed sessions rank highest: they are the
// ones worth documenting or mining.
var stateBaseScores = map[engine.SessionState]float64{
	engine.StateCompleted: 90,
	engine.StateStuck:     70,
	engine.StateAbandoned: 60,
	engine.StatePaused:    50,
	engine.StateActive:    40,
	engine.StateUnknown:   20,
}

// intentSignals is checked in order; the first substring hit wins.
var intentSignals = []struct {
	needle string
	score  float64
}{
	{"document", 90},
	{"pattern", 80},
	{"relation", 75},
	{"similar", 75},
	{"analyz", 70},
	{"debug", 65},
	{"search", 60},
}

// evaluateFactors scores the seven decision factors from the built context.
func evaluateFactors(ac *analysisContext, now time.Time) factorScores {
	f := factorScores{
		SessionState:       scoreSessionState(ac.state),
		UserIntent:         scoreUserIntent(ac.intent),
		SemanticComplexity: scoreComplexity(ac.semantic),
		PatternValue:       scorePatternValue(ac.semantic, ac.state),
		RelationshipValue:  scoreRelationshipValue(ac.relationships),
		Temporal:           scoreTemporal(ac.session, now),
	}
	if ac.state != nil {
		f.DocumentationNeed = clamp100(float64(ac.state.DocumentationValue))
	}
	return f
}

func scoreSessionState(state *engine.StateProfile) float64 {
	if state == nil {
		return 0
	}
	base, ok := stateBaseScores[state.State]
	if !ok {
		base = stateBaseScores[engine.StateUnknown]
	}
	return clamp100(base * state.Confidence)
}

func scoreUserIntent(intent string) float64 {
	if intent == "" {
		return 50
	}
	lower := strings.ToLower(intent)
	for _, sig := range intentSignals {
		if strings.Contains(lower, sig.needle) {
			return sig.score
		}
	}
	return 50
}

// scoreComplexity rises with topic breadth, code and error density, and
// topic drift.
func scoreComplexity(profile *engine.SemanticProfile) float64 {
	if profile == nil {
		return 0
	}
	score := float64(len(profile.Features.Topics))*15 +
		float64(profile.Structure.CodeBlockCount)*10 +
		float64(profile.Structure.ErrorCount)*10 +
		profile.Drift.AvgDrift*30
	return clamp100(score)
}

// scorePatternValue estimates how much reusable problem/solution material
// the session carries.
func scorePatternValue(profile *engine.SemanticProfile, state *engine.StateProfile) float64 {
	if profile == nil {
		return 0
	}
	score := float64(profile.Structure.ErrorCount)*20 +
		float64(profile.Structure.CodeBlockCount)*10 +
		float64(len(profile.Structure.QAPairs))*5
	if state != nil && state.State == engine.StateCompleted {
		score += 20
	}
	return clamp100(score)
}

func scoreRelationshipValue(set *engine.RelationshipSet) float64 {
	if set == nil || len(set.Relationships) == 0 {
		return 0
	}
	sum := 0.0
	for _, rec := range set.Relationships {
		sum += rec.Confidence
	}
	avg := sum / float64(len(set.Relationships))
	return clamp100(float64(len(set.Relationships))*15 + avg*40)
}

// scoreTemporal favors recently active sessions.
func scoreTemporal(session *engine.Session, now time.Time) float64 {
	if session.LastActivity.IsZero() {
		return 0
	}
	age := now.Sub(session.LastActivity)
	switch {
	case age < time.Hour:
		return 90
	case age < 24*time.Hour:
		return 70
	case age < 7*24*time.Hour:
		return 50
	case age < 30*24*time.Hour:
		return 30
	default:
		return 10
	}
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
