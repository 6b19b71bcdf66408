// Package sessionstate classifies a session's lifecycle state from
// temporal, content, activity, and resolution signals computed over the
// full message history. Classification is a pure function of
// (messages, config): nothing is persisted between calls, and exactly one
// state holds per analysis. The analyzer also scores documentation
// readiness for the orchestrator's decision factors.
package sessionstate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
	"github.com/sessionlens/sessiond/pkg/boundedcache"
)

// Documentation-readiness point values, compared against the configured
// threshold.
const (
	pointsResolved         = 30
	pointsMessageVolume    = 20
	pointsQuality          = 25
	pointsErrorsResolved   = 25
	pointsResolutionPath   = 15
	pointsResolutionLang   = 10
	pointsCompleteness     = 10
	pointsEngagement       = 5
	messageVolumeThreshold = 5
)

// stateRule is one priority-ordered classification rule. Rules are
// evaluated in declaration order; the first match wins.
type stateRule struct {
	state engine.SessionState
	eval  func(sig signals) (bool, float64, []string)
}

// Analyzer classifies session state. Safe for concurrent use.
type Analyzer struct {
	cfg   config.EngineConfig
	cache *boundedcache.Cache[*engine.StateProfile]
	log   *logging.Logger
	rules []stateRule

	// now is swappable for deterministic tests.
	now func() time.Time

	invocations atomic.Uint64
	cacheHits   atomic.Uint64
	failures    atomic.Uint64
}

// New creates a state analyzer from the immutable engine config.
func New(cfg config.EngineConfig, log *logging.Logger) *Analyzer {
	if log == nil {
		log = logging.NewNop()
	}
	cache := boundedcache.New[*engine.StateProfile](cfg.CacheMaxEntries, cfg.CacheTTL.Duration())
	cache.SetMetrics(boundedcache.NewMetrics("sessionstate", log.Underlying()))
	a := &Analyzer{
		cfg:   cfg,
		cache: cache,
		log:   log.Named("sessionstate"),
		now:   time.Now,
	}
	a.rules = buildStateRules()
	return a
}

// buildStateRules returns the priority-ordered state machine. Order is
// behaviorally significant: active shadows completed for in-flight
// sessions, and stuck only applies once a session has gone quiet.
func buildStateRules() []stateRule {
	return []stateRule{
		{engine.StateActive, func(sig signals) (bool, float64, []string) {
			if !sig.temporal.isRecent || sig.activity.level != activityActive || sig.resolution.isResolved {
				return false, 0, nil
			}
			conf := 0.90
			evidence := []string{
				fmt.Sprintf("last activity %s ago", sig.temporal.sinceLast.Round(time.Second)),
				"conversation still in flight",
			}
			if sig.content.hasQuestions {
				conf += 0.05
				evidence = append(evidence, "open questions present")
			}
			return true, conf, evidence
		}},
		{engine.StateCompleted, func(sig signals) (bool, float64, []string) {
			if !sig.resolution.isResolved || sig.resolution.confidence <= 0.7 {
				return false, 0, nil
			}
			conf := sig.resolution.confidence
			evidence := []string{
				fmt.Sprintf("%d of %d problems resolved",
					sig.resolution.problemsResolved,
					sig.resolution.problemsResolved+sig.resolution.openIssues),
				fmt.Sprintf("resolution confidence %.2f", sig.resolution.confidence),
			}
			if sig.content.gratitudeRecent > 0 {
				conf += 0.10
				evidence = append(evidence, "gratitude expressed in closing messages")
			}
			if sig.content.hasCompletion {
				conf += 0.05
				evidence = append(evidence, "completion language detected")
			}
			if conf > 0.95 {
				conf = 0.95
			}
			return true, conf, evidence
		}},
		{engine.StatePaused, func(sig signals) (bool, float64, []string) {
			if sig.temporal.isRecent || sig.temporal.isStale {
				return false, 0, nil
			}
			conf := 0.75
			evidence := []string{
				fmt.Sprintf("inactive for %s, not yet stale", sig.temporal.sinceLast.Round(time.Minute)),
			}
			if sig.content.hasConfusion {
				conf += 0.10
				evidence = append(evidence, "confusion language before the pause")
			}
			if conf > 0.85 {
				conf = 0.85
			}
			return true, conf, evidence
		}},
		{engine.StateAbandoned, func(sig signals) (bool, float64, []string) {
			if sig.activity.level != activityAbandoned && !sig.temporal.isStale {
				return false, 0, nil
			}
			conf := 0.80
			evidence := []string{
				fmt.Sprintf("no activity for %s", sig.temporal.sinceLast.Round(time.Minute)),
			}
			if sig.resolution.openIssues > 0 {
				conf += 0.10
				evidence = append(evidence, fmt.Sprintf("%d unresolved issue(s) remain", sig.resolution.openIssues))
			}
			if conf > 0.90 {
				conf = 0.90
			}
			return true, conf, evidence
		}},
		{engine.StateStuck, func(sig signals) (bool, float64, []string) {
			if !sig.content.hasConfusion || sig.temporal.isRecent || sig.resolution.isResolved {
				return false, 0, nil
			}
			return true, 0.80, []string{
				"confusion language present",
				"no resolution reached before the session went quiet",
			}
		}},
	}
}

// Name implements engine.Analyzer.
func (a *Analyzer) Name() string { return "sessionstate" }

// Metrics implements engine.Analyzer.
func (a *Analyzer) Metrics() engine.AnalyzerMetrics {
	return engine.AnalyzerMetrics{
		Invocations: a.invocations.Load(),
		CacheHits:   a.cacheHits.Load(),
		Failures:    a.failures.Load(),
	}
}

// Execute implements engine.Analyzer.
func (a *Analyzer) Execute(ctx context.Context, req engine.Request) (*engine.AnalyzerResult, error) {
	profile, err := a.Analyze(ctx, req.Session)
	if err != nil {
		return nil, err
	}
	return &engine.AnalyzerResult{Analyzer: a.Name(), Profile: profile}, nil
}

// Analyze classifies the session, from cache when possible.
func (a *Analyzer) Analyze(ctx context.Context, session *engine.Session) (*engine.StateProfile, error) {
	a.invocations.Add(1)
	if err := engine.ValidateSession(session); err != nil {
		a.failures.Add(1)
		return nil, fmt.Errorf("state analysis: %w", err)
	}

	key := engine.SessionFingerprint(session)
	if cached, ok := a.cache.Get(key); ok {
		a.cacheHits.Add(1)
		return cached, nil
	}

	profile := a.classify(session)
	a.cache.Put(key, profile)
	a.log.Debug(ctx, "session state classified",
		zap.String("session_id", session.SessionID),
		zap.String("state", string(profile.State)),
		zap.Float64("confidence", profile.Confidence))
	return profile, nil
}

func (a *Analyzer) classify(session *engine.Session) *engine.StateProfile {
	profile := &engine.StateProfile{
		SessionID: session.SessionID,
		State:     engine.StateUnknown,
	}

	if len(session.Messages) == 0 {
		profile.Evidence = []string{"session has no messages"}
		return profile
	}

	sig := computeSignals(session, a.cfg, a.now())

	for _, rule := range a.rules {
		matched, conf, evidence := rule.eval(sig)
		if !matched {
			continue
		}
		profile.State = rule.state
		profile.Confidence = clamp01(conf)
		profile.Evidence = evidence
		break
	}
	profile.Evidence = append(profile.Evidence, cadenceEvidence(sig)...)

	profile.DocumentationValue = a.documentationValue(session, sig)
	profile.DocumentationReady = profile.DocumentationValue >= a.cfg.DocReadyThreshold
	profile.Recommendations, profile.NextActions = a.recommend(profile.State, sig)
	return profile
}

// cadenceEvidence surfaces the session's pacing signals alongside the
// matched rule's own evidence: burst density, mid-session idle stretches,
// and average assistant response latency.
func cadenceEvidence(sig signals) []string {
	var out []string
	if sig.temporal.peakBucket > 1 {
		out = append(out, fmt.Sprintf("busiest 5-minute stretch held %d messages", sig.temporal.peakBucket))
	}
	if sig.temporal.activityGaps > 0 {
		out = append(out, fmt.Sprintf("%d idle 5-minute stretch(es) mid-session", sig.temporal.activityGaps))
	}
	if sig.activity.avgLatency > 0 {
		out = append(out, fmt.Sprintf("assistant replies averaged %s", sig.activity.avgLatency.Round(time.Second)))
	}
	return out
}

// documentationValue is the weighted point sum estimating whether this
// session is worth turning into reusable documentation.
func (a *Analyzer) documentationValue(session *engine.Session, sig signals) int {
	points := 0

	if sig.resolution.isResolved {
		points += pointsResolved
	}
	if len(session.Messages) > messageVolumeThreshold {
		points += pointsMessageVolume
	}
	if qualityScore(session, sig) > 0.7 {
		points += pointsQuality
	}
	if sig.resolution.problemsResolved > 0 {
		points += pointsErrorsResolved
	}
	if sig.resolution.problemsResolved > 0 && sig.resolution.openIssues == 0 {
		points += pointsResolutionPath
	}
	if sig.content.resolutionHits > 0 {
		points += pointsResolutionLang
	}
	if completenessScore(session, sig) > 0.8 {
		points += pointsCompleteness
	}
	if sig.activity.engagementRatio > 0.6 {
		points += pointsEngagement
	}

	if points > 100 {
		points = 100
	}
	return points
}

// qualityScore blends resolution outcome, engagement balance, and message
// substance into [0,1].
func qualityScore(session *engine.Session, sig signals) float64 {
	totalLen := 0
	for _, m := range session.Messages {
		totalLen += len(m.Content)
	}
	avgLen := float64(totalLen) / float64(len(session.Messages))
	lengthScore := avgLen / 200
	if lengthScore > 1 {
		lengthScore = 1
	}
	balance := 1 - abs(sig.activity.engagementRatio-0.5)*2
	return clamp01(0.4*sig.resolution.resolvedFraction + 0.3*balance + 0.3*lengthScore)
}

// completenessScore is the fraction of questions that received an
// assistant response; sessions without questions fall back to the resolved
// fraction.
func completenessScore(session *engine.Session, sig signals) float64 {
	questions, answered := 0, 0
	for i, msg := range session.Messages {
		if !containsQuestion(msg.Content) {
			continue
		}
		questions++
		for j := i + 1; j < len(session.Messages); j++ {
			if session.Messages[j].Role == engine.RoleAssistant {
				answered++
				break
			}
		}
	}
	if questions == 0 {
		return sig.resolution.resolvedFraction
	}
	return float64(answered) / float64(questions)
}

func (a *Analyzer) recommend(state engine.SessionState, sig signals) (recommendations, nextActions []string) {
	switch state {
	case engine.StateActive:
		recommendations = append(recommendations, "monitor until the conversation settles")
		nextActions = append(nextActions, "reassess after the active timeout elapses")
	case engine.StateCompleted:
		recommendations = append(recommendations, "capture the resolution while context is fresh")
		nextActions = append(nextActions, "generate documentation from the resolved thread")
	case engine.StatePaused:
		recommendations = append(recommendations, "flag for follow-up if inactivity continues")
		nextActions = append(nextActions, "check for a continuation session from the same user")
	case engine.StateAbandoned:
		if sig.resolution.openIssues > 0 {
			recommendations = append(recommendations, "record the unresolved issues for pattern analysis")
		}
		nextActions = append(nextActions, "archive the session")
	case engine.StateStuck:
		recommendations = append(recommendations, "review where the conversation lost traction")
		nextActions = append(nextActions, "search related sessions for a working resolution")
	}
	return recommendations, nextActions
}

func containsQuestion(s string) bool {
	for _, r := range s {
		if r == '?' || r == '¿' {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Ensure Analyzer implements the shared capability.
var _ engine.Analyzer = (*Analyzer)(nil)
