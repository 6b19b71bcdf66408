package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

// stubAnalyzer returns a fixed profile or error.
type stubAnalyzer struct {
	name    string
	profile any
	err     error
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Execute(ctx context.Context, req engine.Request) (*engine.AnalyzerResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &engine.AnalyzerResult{Analyzer: s.name, Profile: s.profile}, nil
}

func (s *stubAnalyzer) Metrics() engine.AnalyzerMetrics { return engine.AnalyzerMetrics{} }

func testSession() *engine.Session {
	return &engine.Session{
		SessionID:    "s1",
		UserID:       "u1",
		LastActivity: testNow.Add(-10 * time.Minute),
		Messages: []engine.Message{
			{ID: "m1", Role: engine.RoleUser, Content: "the deploy failed", Timestamp: testNow.Add(-15 * time.Minute)},
			{ID: "m2", Role: engine.RoleAssistant, Content: "rollback and retag, fixed", Timestamp: testNow.Add(-10 * time.Minute)},
		},
	}
}

func newTestOrchestrator(t *testing.T, cfg config.EngineConfig, sem, state, rel engine.Analyzer) *Orchestrator {
	t.Helper()
	o := New(cfg, sem, state, rel, logging.NewNop())
	o.now = func() time.Time { return testNow }
	return o
}

func semanticStub(profile *engine.SemanticProfile) *stubAnalyzer {
	return &stubAnalyzer{name: "semantic", profile: profile}
}

func stateStub(profile *engine.StateProfile) *stubAnalyzer {
	return &stubAnalyzer{name: "sessionstate", profile: profile}
}

func relationshipStub(set *engine.RelationshipSet) *stubAnalyzer {
	return &stubAnalyzer{name: "relationship", profile: set}
}

func TestOrchestrateValidation(t *testing.T) {
	cfg := config.Default().Engine
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{}),
		stateStub(&engine.StateProfile{}),
		relationshipStub(&engine.RelationshipSet{}))

	_, err := o.Orchestrate(context.Background(), engine.Request{})
	require.ErrorIs(t, err, engine.ErrNilSession)
}

func TestDocumentBranchSelected(t *testing.T) {
	cfg := config.Default().Engine
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{}),
		stateStub(&engine.StateProfile{
			State:              engine.StateCompleted,
			Confidence:         0.95,
			DocumentationValue: 90,
		}),
		relationshipStub(&engine.RelationshipSet{}))

	result, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, ActionDocumentSession, result.Action)
	assert.Equal(t, 4, result.Metadata.StepsCompleted)
	assert.NotEmpty(t, result.DetailedResults, "default budget keeps step detail")
}

func TestPatternBranchSelected(t *testing.T) {
	cfg := config.Default().Engine
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{
			Structure: engine.Structure{ErrorCount: 3, CodeBlockCount: 2, MessageCount: 10},
			Features: engine.ContentFeatures{Topics: []engine.TopicScore{
				{Topic: "debugging", Score: 1}, {Topic: "deployment", Score: 0.6},
				{Topic: "database", Score: 0.4}, {Topic: "api", Score: 0.3},
			}},
		}),
		stateStub(&engine.StateProfile{
			State:              engine.StateCompleted,
			Confidence:         0.8,
			DocumentationValue: 40,
		}),
		relationshipStub(&engine.RelationshipSet{}))

	result, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.NoError(t, err)

	assert.Equal(t, ActionAnalyzePatterns, result.Action)
}

func TestRelationshipBranchSelected(t *testing.T) {
	cfg := config.Default().Engine
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{}),
		stateStub(&engine.StateProfile{State: engine.StateActive, Confidence: 0.5}),
		relationshipStub(&engine.RelationshipSet{
			Relationships: []engine.RelationshipRecord{
				{SessionID: "a", Type: engine.TypeFollowUp, Confidence: 0.9},
				{SessionID: "b", Type: engine.TypeFollowUp, Confidence: 0.85},
				{SessionID: "c", Type: engine.TypeRelatedTopic, Confidence: 0.8},
			},
		}))

	result, err := o.Orchestrate(context.Background(), engine.Request{
		Session:    testSession(),
		Candidates: []*engine.Session{testSession()},
	})
	require.NoError(t, err)

	assert.Equal(t, ActionMapRelationships, result.Action)
}

func TestMonitorIsFallback(t *testing.T) {
	cfg := config.Default().Engine
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{}),
		stateStub(&engine.StateProfile{State: engine.StateUnknown}),
		relationshipStub(&engine.RelationshipSet{}))

	result, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.NoError(t, err)

	assert.Equal(t, ActionMonitor, result.Action)
	assert.True(t, result.Success)
}

func TestBranchSelectionIsDeterministic(t *testing.T) {
	f := factorScores{
		SessionState:       85,
		DocumentationNeed:  90,
		PatternValue:       80,
		SemanticComplexity: 80,
		RelationshipValue:  70,
	}

	action1, conf1 := decide(f)
	action2, conf2 := decide(f)

	assert.Equal(t, action1, action2)
	assert.Equal(t, conf1, conf2)
	assert.Equal(t, ActionDocumentSession, action1, "first qualifying branch wins")
}

func TestStepFailureHaltsPlanButReturnsResult(t *testing.T) {
	// The state analyzer is gated off, so the monitor plan's first step
	// has no state context and fails.
	cfg := config.Default().Engine
	cfg.Features.State = false
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{}),
		stateStub(&engine.StateProfile{}),
		relationshipStub(&engine.RelationshipSet{}))

	result, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.NoError(t, err, "execution failures never escape as errors")

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 0, result.Metadata.StepsCompleted)
}

func TestAnalyzerFailureDuringContextBuild(t *testing.T) {
	cfg := config.Default().Engine
	o := newTestOrchestrator(t, cfg,
		&stubAnalyzer{name: "semantic", err: errors.New("backend unavailable")},
		stateStub(&engine.StateProfile{}),
		relationshipStub(&engine.RelationshipSet{}))

	_, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semantic analysis")
}

func TestTightBudgetStripsDetail(t *testing.T) {
	cfg := config.Default().Engine
	cfg.MaxTokenBudget = 100
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{}),
		stateStub(&engine.StateProfile{State: engine.StateUnknown}),
		relationshipStub(&engine.RelationshipSet{}))

	result, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.DetailedResults, "cost over 80 percent of budget strips step detail")
	assert.Positive(t, result.Metadata.TokensUsed)
}

func TestKeyInsightsCappedAtFive(t *testing.T) {
	cfg := config.Default().Engine
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{
			Insights: []string{"one", "two", "three", "four"},
		}),
		stateStub(&engine.StateProfile{
			State:    engine.StateUnknown,
			Evidence: []string{"five", "six", "seven"},
		}),
		relationshipStub(&engine.RelationshipSet{}))

	result, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.NoError(t, err)

	assert.Len(t, result.KeyInsights, 5)
}

func TestBudgetFractions(t *testing.T) {
	tests := []struct {
		action string
		want   int
	}{
		{ActionDocumentSession, 4800},
		{ActionAnalyzePatterns, 2400},
		{ActionMapRelationships, 2400},
		{ActionDeepAnalysis, 3200},
		{ActionMonitor, 3200},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			plan := buildPlan(tt.action, 0.9, 8000)
			assert.Equal(t, tt.want, plan.TokenBudget)
			assert.NotEmpty(t, plan.Steps)
			assert.NotEmpty(t, plan.ID)
		})
	}
}

func TestRelationshipAnalyzerSkippedWithoutCandidates(t *testing.T) {
	cfg := config.Default().Engine
	failing := &stubAnalyzer{name: "relationship", err: errors.New("must not be called")}
	o := newTestOrchestrator(t, cfg,
		semanticStub(&engine.SemanticProfile{}),
		stateStub(&engine.StateProfile{State: engine.StateUnknown}),
		failing)

	result, err := o.Orchestrate(context.Background(), engine.Request{Session: testSession()})
	require.NoError(t, err)
	assert.Equal(t, ActionMonitor, result.Action)
}
