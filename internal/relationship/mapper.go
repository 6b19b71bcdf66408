// Package relationship scores a target session against candidate sessions
// across seven similarity dimensions, classifies each pair's relationship
// type through five ordered rules, and clusters the survivors. Results are
// cached by a fingerprint over the target plus the full candidate set.
//
// The type rules are deliberately evaluated in declaration order with a
// strict greater-than comparison, so ties favor the earlier-declared rule.
// That tie-break is load-bearing; do not "fix" it.
package relationship

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/features"
	"github.com/sessionlens/sessiond/internal/logging"
	"github.com/sessionlens/sessiond/pkg/boundedcache"
)

// clusterConfidenceFloor is the minimum confidence for a relationship to
// join a cluster.
const clusterConfidenceFloor = 0.7

// typeRule scores one relationship type for a candidate pair. A zero
// return means the rule does not apply.
type typeRule struct {
	relType engine.RelationshipType
	score   func(m *Mapper, target, cand *sessionView, dims engine.Dimensions) (float64, []string)
}

// Mapper computes relationship sets. Safe for concurrent use.
type Mapper struct {
	cfg       config.EngineConfig
	extractor *features.Extractor
	cache     *boundedcache.Cache[*engine.RelationshipSet]
	log       *logging.Logger
	rules     []typeRule

	invocations atomic.Uint64
	cacheHits   atomic.Uint64
	failures    atomic.Uint64
}

// New creates a relationship mapper from the immutable engine config.
func New(cfg config.EngineConfig, log *logging.Logger) *Mapper {
	if log == nil {
		log = logging.NewNop()
	}
	cache := boundedcache.New[*engine.RelationshipSet](cfg.CacheMaxEntries, cfg.CacheTTL.Duration())
	cache.SetMetrics(boundedcache.NewMetrics("relationship", log.Underlying()))
	return &Mapper{
		cfg:       cfg,
		extractor: features.NewExtractor(),
		cache:     cache,
		log:       log.Named("relationship"),
		rules:     buildTypeRules(),
	}
}

// buildTypeRules returns the five classification rules in their fixed
// declaration order. Every rule is checked; the highest score wins, with
// strict > so ties keep the earlier rule.
func buildTypeRules() []typeRule {
	return []typeRule{
		{engine.TypeFollowUp, func(m *Mapper, target, cand *sessionView, dims engine.Dimensions) (float64, []string) {
			if dims.User != 1 || dims.Content <= 0.6 {
				return 0, nil
			}
			gap := activityGap(target.session, cand.session)
			window := m.cfg.FollowUpWindow.Duration()
			if gap <= 0 || gap > window {
				return 0, nil
			}
			score := 0.8
			evidence := []string{
				"same user within the follow-up window",
				fmt.Sprintf("content similarity %.2f", dims.Content),
			}
			if gap < time.Hour {
				score += 0.1
				evidence = append(evidence, "sessions less than an hour apart")
			}
			if topicOverlap(target, cand) > 0.5 {
				score += 0.05
				evidence = append(evidence, "strong topic overlap")
			}
			if score > 0.95 {
				score = 0.95
			}
			return score, evidence
		}},
		{engine.TypeDuplicateIssue, func(m *Mapper, target, cand *sessionView, dims engine.Dimensions) (float64, []string) {
			if dims.Content <= 0.8 {
				return 0, nil
			}
			return dims.Content, []string{
				fmt.Sprintf("near-duplicate content, similarity %.2f", dims.Content),
			}
		}},
		{engine.TypeRelatedTopic, func(m *Mapper, target, cand *sessionView, dims engine.Dimensions) (float64, []string) {
			topic := topicOverlap(target, cand)
			lengthSim := features.RatioSimilarity(target.avgLength, cand.avgLength)
			if topic <= 0.7 || lengthSim <= 0.5 {
				return 0, nil
			}
			score := 0.6*topic + 0.4*dims.Structural
			if score > 0.95 {
				score = 0.95
			}
			return score, []string{
				fmt.Sprintf("topic overlap %.2f with comparable structure", topic),
			}
		}},
		{engine.TypeSimilarSolution, func(m *Mapper, target, cand *sessionView, dims engine.Dimensions) (float64, []string) {
			match := m.resolutionPatternMatch(target, cand)
			if match <= 0.6 {
				return 0, nil
			}
			return match, []string{"matching resolution pattern"}
		}},
		{engine.TypeContextuallyRelated, func(m *Mapper, target, cand *sessionView, dims engine.Dimensions) (float64, []string) {
			entityOverlap := features.SetSimilarity(target.allEnts, cand.allEnts)
			if dims.Context <= 0.8 || entityOverlap <= 0.5 {
				return 0, nil
			}
			score := 0.5*dims.Context + 0.5*entityOverlap
			if score > 0.95 {
				score = 0.95
			}
			return score, []string{
				fmt.Sprintf("same project with entity overlap %.2f", entityOverlap),
			}
		}},
	}
}

// Name implements engine.Analyzer.
func (m *Mapper) Name() string { return "relationship" }

// Metrics implements engine.Analyzer.
func (m *Mapper) Metrics() engine.AnalyzerMetrics {
	return engine.AnalyzerMetrics{
		Invocations: m.invocations.Load(),
		CacheHits:   m.cacheHits.Load(),
		Failures:    m.failures.Load(),
	}
}

// Execute implements engine.Analyzer.
func (m *Mapper) Execute(ctx context.Context, req engine.Request) (*engine.AnalyzerResult, error) {
	set, err := m.MapRelationships(ctx, req.Session, req.Candidates)
	if err != nil {
		return nil, err
	}
	return &engine.AnalyzerResult{Analyzer: m.Name(), Profile: set}, nil
}

// MapRelationships scores the target against every candidate, keeps
// relationships at or above the similarity threshold, sorts them by
// confidence descending, and clusters the result.
func (m *Mapper) MapRelationships(ctx context.Context, target *engine.Session, candidates []*engine.Session) (*engine.RelationshipSet, error) {
	m.invocations.Add(1)
	if err := engine.ValidateSession(target); err != nil {
		m.failures.Add(1)
		return nil, fmt.Errorf("relationship mapping: %w", err)
	}

	key := engine.RelationFingerprint(target, candidates)
	if cached, ok := m.cache.Get(key); ok {
		m.cacheHits.Add(1)
		return cached, nil
	}

	targetView := m.newSessionView(target)
	byID := make(map[string]engine.RelationshipRecord)
	var order []string

	for _, cand := range candidates {
		if cand == nil || cand.SessionID == target.SessionID {
			continue
		}
		if cand.Messages == nil {
			// Degrade rather than abort: an unusable candidate
			// contributes nothing.
			continue
		}
		candView := m.newSessionView(cand)
		dims := m.scoreDimensions(targetView, candView)
		rec := m.classify(targetView, candView, dims)

		if rec.Confidence < m.cfg.SimilarityThreshold {
			continue
		}
		if prev, dup := byID[rec.SessionID]; dup {
			if rec.Confidence > prev.Confidence {
				byID[rec.SessionID] = rec
			}
			continue
		}
		byID[rec.SessionID] = rec
		order = append(order, rec.SessionID)
	}

	set := &engine.RelationshipSet{
		SessionID:   target.SessionID,
		GeneratedAt: time.Now(),
	}
	for _, id := range order {
		set.Relationships = append(set.Relationships, byID[id])
	}
	sort.SliceStable(set.Relationships, func(i, j int) bool {
		return set.Relationships[i].Confidence > set.Relationships[j].Confidence
	})
	set.Clusters = clusterRelationships(set.Relationships)

	m.cache.Put(key, set)
	m.log.Debug(ctx, "relationships mapped",
		zap.String("session_id", target.SessionID),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(set.Relationships)),
		zap.Int("clusters", len(set.Clusters)))
	return set, nil
}

// classify evaluates all five rules in declaration order and keeps the
// highest-scoring type, ties favoring the earlier rule.
func (m *Mapper) classify(target, cand *sessionView, dims engine.Dimensions) engine.RelationshipRecord {
	rec := engine.RelationshipRecord{
		SessionID:  cand.session.SessionID,
		Type:       engine.TypeUnknownRelation,
		Dimensions: dims,
	}

	best := 0.0
	for _, rule := range m.rules {
		score, evidence := rule.score(m, target, cand, dims)
		if score > best {
			best = score
			rec.Type = rule.relType
			rec.Confidence = clamp01(score)
			rec.Evidence = evidence
		}
	}

	if rec.Type == engine.TypeUnknownRelation {
		// No rule fired; fall back to the blended dimension average so
		// very similar pairs still surface.
		rec.Confidence = clamp01((dims.Content + dims.Temporal + dims.Structural +
			dims.Resolution + dims.User + dims.Context) / 6)
	}
	return rec
}

// clusterRelationships is a greedy single pass over the sorted records:
// the first unprocessed relationship anchors a cluster of unclaimed
// same-type relationships above the confidence floor.
func clusterRelationships(records []engine.RelationshipRecord) []engine.Cluster {
	var clusters []engine.Cluster
	processed := make(map[string]bool, len(records))

	for _, anchor := range records {
		if processed[anchor.SessionID] {
			continue
		}
		processed[anchor.SessionID] = true

		members := []engine.RelationshipRecord{anchor}
		for _, other := range records {
			if processed[other.SessionID] || other.Type != anchor.Type {
				continue
			}
			if other.Confidence > clusterConfidenceFloor {
				members = append(members, other)
				processed[other.SessionID] = true
			}
		}
		if len(members) < 2 {
			continue
		}

		cluster := engine.Cluster{Type: anchor.Type}
		sum := 0.0
		for _, rec := range members {
			cluster.Sessions = append(cluster.Sessions, rec.SessionID)
			sum += rec.Confidence
		}
		cluster.AvgConfidence = sum / float64(len(members))
		clusters = append(clusters, cluster)
	}
	return clusters
}

// activityGap is the absolute gap between last activities.
func activityGap(a, b *engine.Session) time.Duration {
	if a.LastActivity.IsZero() || b.LastActivity.IsZero() {
		return 0
	}
	gap := a.LastActivity.Sub(b.LastActivity)
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// topicOverlap is the Jaccard similarity between topic-name sets.
func topicOverlap(a, b *sessionView) float64 {
	return features.SetSimilarity(a.topics, b.topics)
}

// Ensure Mapper implements the shared capability.
var _ engine.Analyzer = (*Mapper)(nil)
