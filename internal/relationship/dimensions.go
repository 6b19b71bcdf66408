package relationship

import (
	"strings"
	"time"

	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/features"
)

// temporalHalfScale is the activity gap at which temporal proximity decays
// to zero.
const temporalHalfScale = 30 * 24 * time.Hour

// neutralScore is the documented placeholder value for the resolution
// pattern and semantic similarity extension points.
const neutralScore = 0.5

// sessionView caches the per-session derived data the dimension scorers
// share, so each session is feature-extracted once per mapping call.
type sessionView struct {
	session  *engine.Session
	text     string
	features engine.ContentFeatures
	topics   []string
	allEnts  []string

	msgCount        int
	avgLength       float64
	engagementRatio float64
	lastRole        engine.Role
}

func (m *Mapper) newSessionView(s *engine.Session) *sessionView {
	v := &sessionView{
		session:  s,
		text:     features.SessionText(s),
		msgCount: len(s.Messages),
	}
	v.features = m.extractor.Features(s)
	for _, t := range v.features.Topics {
		v.topics = append(v.topics, t.Topic)
	}
	v.allEnts = append(v.allEnts, v.features.Entities.Files...)
	v.allEnts = append(v.allEnts, v.features.Entities.Functions...)
	v.allEnts = append(v.allEnts, v.features.Entities.Services...)
	v.allEnts = append(v.allEnts, v.features.Entities.Technologies...)

	if v.msgCount > 0 {
		total, users := 0, 0
		for _, msg := range s.Messages {
			total += len(msg.Content)
			if msg.Role == engine.RoleUser {
				users++
			}
		}
		v.avgLength = float64(total) / float64(v.msgCount)
		v.engagementRatio = float64(users) / float64(v.msgCount)
		v.lastRole = s.Messages[v.msgCount-1].Role
	}
	return v
}

// scoreDimensions computes the seven dimension scores between target and
// candidate, each in [0,1].
func (m *Mapper) scoreDimensions(target, cand *sessionView) engine.Dimensions {
	return engine.Dimensions{
		Content:    m.contentScore(target, cand),
		Temporal:   temporalScore(target.session, cand.session),
		Structural: structuralScore(target, cand),
		Resolution: m.resolutionScore(target, cand),
		User:       userScore(target.session, cand.session),
		Context:    contextScore(target.session, cand.session),
		Semantic:   m.semanticSimilarity(target, cand),
	}
}

// contentScore is the weighted blend of text, keyword, entity, topic,
// error, and code similarity.
func (m *Mapper) contentScore(a, b *sessionView) float64 {
	w := m.cfg.ContentWeights

	errKinds := func(v *sessionView) []string {
		var kinds []string
		for _, e := range v.features.Errors {
			kinds = append(kinds, e.Kind+":"+e.Text)
		}
		return kinds
	}
	codeLangs := func(v *sessionView) []string {
		var langs []string
		for _, c := range v.features.CodeBlocks {
			langs = append(langs, c.Language)
		}
		return langs
	}

	score := w.Text*features.TextSimilarity(a.text, b.text) +
		w.Keywords*features.SetSimilarity(a.features.Keywords, b.features.Keywords) +
		w.Entities*features.SetSimilarity(a.allEnts, b.allEnts) +
		w.Topics*features.SetSimilarity(a.topics, b.topics) +
		w.Errors*features.SetSimilarity(errKinds(a), errKinds(b)) +
		w.Code*features.SetSimilarity(codeLangs(a), codeLangs(b))
	return clamp01(score)
}

// temporalScore decays linearly with the activity gap, reaching zero at
// the 30-day half-scale.
func temporalScore(a, b *engine.Session) float64 {
	if a.LastActivity.IsZero() || b.LastActivity.IsZero() {
		return 0
	}
	gap := a.LastActivity.Sub(b.LastActivity)
	if gap < 0 {
		gap = -gap
	}
	if gap >= temporalHalfScale {
		return 0
	}
	return 1 - float64(gap)/float64(temporalHalfScale)
}

// structuralScore blends message-length, count, and engagement ratio
// similarity with flow-pattern equality.
func structuralScore(a, b *sessionView) float64 {
	ratios := (features.RatioSimilarity(a.avgLength, b.avgLength) +
		features.RatioSimilarity(float64(a.msgCount), float64(b.msgCount)) +
		features.RatioSimilarity(a.engagementRatio, b.engagementRatio)) / 3

	flowEq := 0.0
	if a.lastRole == b.lastRole {
		flowEq = 1
	}
	return clamp01(0.8*ratios + 0.2*flowEq)
}

// resolutionScore compares how much resolution language each session
// carries.
func (m *Mapper) resolutionScore(a, b *sessionView) float64 {
	count := func(v *sessionView) float64 {
		lower := strings.ToLower(v.text)
		n := 0
		for _, p := range m.cfg.Keywords.Resolution {
			n += strings.Count(lower, p)
		}
		return float64(n)
	}
	// Both sessions without resolution language are trivially alike.
	return features.RatioSimilarity(count(a), count(b))
}

// userScore is exact-match on user identity.
func userScore(a, b *engine.Session) float64 {
	if a.UserID != "" && a.UserID == b.UserID {
		return 1
	}
	return 0
}

// contextScore compares project names by word overlap, so "payments-api"
// and "payments api v2" still relate.
func contextScore(a, b *engine.Session) float64 {
	if a.ProjectName == "" || b.ProjectName == "" {
		return 0
	}
	if a.ProjectName == b.ProjectName {
		return 1
	}
	return features.TextSimilarity(a.ProjectName, b.ProjectName)
}

// semanticSimilarity is a reserved extension point; it returns the neutral
// value until a real scorer replaces it.
func (m *Mapper) semanticSimilarity(_, _ *sessionView) float64 {
	return neutralScore
}

// resolutionPatternMatch is a reserved extension point backing the
// similar_solution rule; it returns the neutral value, which keeps that
// rule below its firing threshold until a real matcher lands.
func (m *Mapper) resolutionPatternMatch(_, _ *sessionView) float64 {
	return neutralScore
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
