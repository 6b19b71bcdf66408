// Package semantic derives a SemanticProfile for one session: structural
// metrics from a single linear pass, content features, sentiment, coherence,
// and topic drift. Profiles are cached by session fingerprint.
package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/features"
	"github.com/sessionlens/sessiond/internal/logging"
	"github.com/sessionlens/sessiond/pkg/boundedcache"
)

const (
	// driftChunks is how many segments a session is split into for
	// topic-drift detection.
	driftChunks = 3

	// driftPointThreshold marks a chunk transition as a drift point.
	driftPointThreshold = 0.5

	// keyPhraseLimit bounds the raw term-frequency key-phrase list.
	keyPhraseLimit = 10
)

// Analyzer computes semantic profiles. Safe for concurrent use; the only
// shared state is the profile cache.
type Analyzer struct {
	extractor *features.Extractor
	cache     *boundedcache.Cache[*engine.SemanticProfile]
	log       *logging.Logger

	invocations atomic.Uint64
	cacheHits   atomic.Uint64
	failures    atomic.Uint64
}

// New creates a semantic analyzer from the immutable engine config.
func New(cfg config.EngineConfig, log *logging.Logger) *Analyzer {
	if log == nil {
		log = logging.NewNop()
	}
	cache := boundedcache.New[*engine.SemanticProfile](cfg.CacheMaxEntries, cfg.CacheTTL.Duration())
	cache.SetMetrics(boundedcache.NewMetrics("semantic", log.Underlying()))
	return &Analyzer{
		extractor: features.NewExtractor(),
		cache:     cache,
		log:       log.Named("semantic"),
	}
}

// Name implements engine.Analyzer.
func (a *Analyzer) Name() string { return "semantic" }

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

// Analyze produces the semantic profile for a session, from cache when the
// fingerprint matches a prior computation.
func (a *Analyzer) Analyze(ctx context.Context, session *engine.Session) (*engine.SemanticProfile, error) {
	a.invocations.Add(1)
	if err := engine.ValidateSession(session); err != nil {
		a.failures.Add(1)
		return nil, fmt.Errorf("semantic analysis: %w", err)
	}

	key := engine.SessionFingerprint(session)
	if cached, ok := a.cache.Get(key); ok {
		a.cacheHits.Add(1)
		return cached, nil
	}

	structure := a.analyzeStructure(session)
	fullText := features.SessionText(session)

	profile := &engine.SemanticProfile{
		SessionID:   session.SessionID,
		Structure:   structure,
		Features:    a.extractor.Features(session),
		KeyPhrases:  a.keyPhrases(fullText),
		Sentiment:   scoreSentiment(session),
		Coherence:   a.coherence(session.Messages),
		Drift:       a.topicDrift(session.Messages),
		GeneratedAt: time.Now(),
	}
	profile.Insights = a.synthesizeInsights(profile)

	a.cache.Put(key, profile)
	a.log.Debug(ctx, "semantic profile computed",
		zap.String("session_id", session.SessionID),
		zap.Int("messages", structure.MessageCount),
		zap.Float64("coherence", profile.Coherence))
	return profile, nil
}

// analyzeStructure is the single linear pass: role counts, turn
// transitions, question detection, naive Q&A pairing, code/error/link
// extraction, average length.
func (a *Analyzer) analyzeStructure(session *engine.Session) engine.Structure {
	msgs := session.Messages
	s := engine.Structure{MessageCount: len(msgs)}
	if len(msgs) == 0 {
		return s
	}

	totalLen := 0
	for i, msg := range msgs {
		switch msg.Role {
		case engine.RoleUser:
			s.UserMessages++
		case engine.RoleAssistant:
			s.AssistantMessages++
		case engine.RoleTool:
			s.ToolMessages++
		}
		if i > 0 && msgs[i-1].Role != msg.Role {
			s.TurnTransitions++
		}
		totalLen += len(msg.Content)
		s.LinkCount += a.extractor.Links(msg.Content)

		if strings.ContainsAny(msg.Content, "?¿") {
			s.QuestionCount++
			// Scan forward for the next assistant message.
			for j := i + 1; j < len(msgs); j++ {
				if msgs[j].Role == engine.RoleAssistant {
					s.QAPairs = append(s.QAPairs, engine.QAPair{
						QuestionIndex: i,
						AnswerIndex:   j,
					})
					break
				}
			}
		}
	}

	s.CodeBlockCount = len(a.extractor.CodeBlocks(msgs))
	s.ErrorCount = len(a.extractor.Errors(msgs))
	s.AvgMessageLength = float64(totalLen) / float64(len(msgs))
	return s
}

// coherence is the mean pairwise word-set similarity between each message
// and its immediate predecessor; 1 if fewer than 2 messages.
func (a *Analyzer) coherence(msgs []engine.Message) float64 {
	if len(msgs) < 2 {
		return 1
	}
	sum := 0.0
	for i := 1; i < len(msgs); i++ {
		sum += features.TextSimilarity(msgs[i-1].Content, msgs[i].Content)
	}
	return sum / float64(len(msgs)-1)
}

// topicDrift splits messages into three equal-ish chunks and measures how
// the topic-name set changes between consecutive chunks. Fewer than three
// messages means no drift.
func (a *Analyzer) topicDrift(msgs []engine.Message) engine.DriftReport {
	if len(msgs) < driftChunks {
		return engine.DriftReport{}
	}

	chunkTopics := make([][]string, driftChunks)
	for c := 0; c < driftChunks; c++ {
		start := c * len(msgs) / driftChunks
		end := (c + 1) * len(msgs) / driftChunks
		var sb strings.Builder
		for _, m := range msgs[start:end] {
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		for _, t := range a.extractor.Topics(sb.String()) {
			chunkTopics[c] = append(chunkTopics[c], t.Topic)
		}
	}

	var report engine.DriftReport
	sum := 0.0
	for c := 1; c < driftChunks; c++ {
		drift := 1 - features.SetSimilarity(chunkTopics[c-1], chunkTopics[c])
		sum += drift
		if drift > driftPointThreshold {
			report.DriftPoints = append(report.DriftPoints, engine.DriftPoint{
				FromChunk: c - 1,
				ToChunk:   c,
				Drift:     drift,
			})
		}
	}
	report.AvgDrift = sum / float64(driftChunks-1)
	return report
}

// keyPhrases returns the top raw term-frequency keywords.
func (a *Analyzer) keyPhrases(text string) []string {
	freq := make(map[string]int)
	order := make(map[string]int)
	for _, kw := range a.extractor.Keywords(text) {
		order[kw] = len(order)
	}
	for _, tok := range features.Tokenize(text) {
		if _, tracked := order[tok]; tracked {
			freq[tok]++
		}
	}

	phrases := make([]string, 0, len(freq))
	for kw := range freq {
		phrases = append(phrases, kw)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if freq[phrases[i]] != freq[phrases[j]] {
			return freq[phrases[i]] > freq[phrases[j]]
		}
		return order[phrases[i]] < order[phrases[j]]
	})
	if len(phrases) > keyPhraseLimit {
		phrases = phrases[:keyPhraseLimit]
	}
	return phrases
}

// synthesizeInsights turns profile signals into human-readable findings.
func (a *Analyzer) synthesizeInsights(p *engine.SemanticProfile) []string {
	var insights []string

	if len(p.Features.Topics) > 0 {
		insights = append(insights, fmt.Sprintf("dominant topic is %q (score %.2f)",
			p.Features.Topics[0].Topic, p.Features.Topics[0].Score))
	}
	if p.Structure.ErrorCount > 0 {
		insights = append(insights, fmt.Sprintf("%d error mentions across %d messages",
			p.Structure.ErrorCount, p.Structure.MessageCount))
	}
	if p.Structure.CodeBlockCount > 2 {
		insights = append(insights, fmt.Sprintf("code-heavy session with %d code blocks",
			p.Structure.CodeBlockCount))
	}
	if unanswered := p.Structure.QuestionCount - len(p.Structure.QAPairs); unanswered > 0 {
		insights = append(insights, fmt.Sprintf("%d questions without an assistant response", unanswered))
	}
	if len(p.Drift.DriftPoints) > 0 {
		insights = append(insights, fmt.Sprintf("topic drifted at %d point(s), average drift %.2f",
			len(p.Drift.DriftPoints), p.Drift.AvgDrift))
	}
	if p.Sentiment.Label != "neutral" {
		insights = append(insights, fmt.Sprintf("overall sentiment is %s (%.2f)",
			p.Sentiment.Label, p.Sentiment.Confidence))
	}
	return insights
}

// Ensure Analyzer implements the shared capability.
var _ engine.Analyzer = (*Analyzer)(nil)
