package sessionstate

import (
	"strings"
	"time"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
)

const (
	// staleMultiple of the active timeout marks a session as stale.
	staleMultiple = 4

	// recentWindow is how many trailing messages the resolution signal
	// scores separately.
	recentWindow = 3

	// resolutionScanAhead is how many messages after a problem mention
	// are scanned for a resolution.
	resolutionScanAhead = 3

	// activityBucket groups messages for peak/gap detection.
	activityBucket = 5 * time.Minute
)

// activityLevel is the 3-way recency bucket.
type activityLevel string

const (
	activityActive    activityLevel = "active"
	activityPaused    activityLevel = "paused"
	activityAbandoned activityLevel = "abandoned"
)

// flowDirection says whose turn the conversation is waiting on.
type flowDirection string

const (
	waitingForAssistant flowDirection = "waiting_for_assistant"
	waitingForUser      flowDirection = "waiting_for_user"
)

// temporalSignals captures the session's shape in time.
type temporalSignals struct {
	duration     time.Duration
	sinceLast    time.Duration
	isRecent     bool
	isStale      bool
	peakBucket   int // messages in the busiest 5-minute bucket
	activityGaps int // empty 5-minute buckets between first and last message
}

// contentSignals captures keyword and phrase hits.
type contentSignals struct {
	hasQuestions     bool
	problemHits      int
	resolutionHits   int
	problemRecent    int
	resolutionRecent int
	gratitudeRecent  int
	hasGratitude     bool
	hasConfusion     bool
	hasContinuation  bool
	hasCompletion    bool
}

// activitySignals captures engagement and turn-taking.
type activitySignals struct {
	lastUserAt      time.Time
	lastAssistantAt time.Time
	engagementRatio float64
	flow            flowDirection
	avgLatency      time.Duration
	level           activityLevel
}

// resolutionSignals captures the problem/resolution scan.
type resolutionSignals struct {
	problemsResolved int
	openIssues       int
	resolvedFraction float64
	rawScore         int
	confidence       float64
	isResolved       bool
}

// signals bundles the four groups computed from one full message history.
type signals struct {
	temporal   temporalSignals
	content    contentSignals
	activity   activitySignals
	resolution resolutionSignals
}

// computeSignals derives all four signal groups. It is a pure function of
// (session, config, now); a malformed timestamp degrades the affected
// temporal values to zero rather than failing the analysis.
func computeSignals(session *engine.Session, cfg config.EngineConfig, now time.Time) signals {
	return signals{
		temporal:   computeTemporal(session, cfg, now),
		content:    computeContent(session, cfg.Keywords),
		activity:   computeActivity(session, cfg, now),
		resolution: computeResolution(session, cfg.Keywords),
	}
}

func computeTemporal(session *engine.Session, cfg config.EngineConfig, now time.Time) temporalSignals {
	t := temporalSignals{}
	msgs := session.Messages
	if len(msgs) == 0 {
		return t
	}

	first, last := msgs[0].Timestamp, msgs[len(msgs)-1].Timestamp
	if !first.IsZero() && !last.IsZero() && last.After(first) {
		t.duration = last.Sub(first)
	}

	ref := session.LastActivity
	if ref.IsZero() {
		ref = last
	}
	if !ref.IsZero() && now.After(ref) {
		t.sinceLast = now.Sub(ref)
	}

	timeout := cfg.ActiveTimeout.Duration()
	t.isRecent = t.sinceLast < timeout
	t.isStale = t.sinceLast > time.Duration(staleMultiple)*timeout

	if !first.IsZero() && t.duration > 0 {
		buckets := int(t.duration/activityBucket) + 1
		counts := make([]int, buckets)
		for _, m := range msgs {
			if m.Timestamp.IsZero() || m.Timestamp.Before(first) {
				continue
			}
			idx := int(m.Timestamp.Sub(first) / activityBucket)
			if idx >= 0 && idx < buckets {
				counts[idx]++
			}
		}
		for _, c := range counts {
			if c > t.peakBucket {
				t.peakBucket = c
			}
			if c == 0 {
				t.activityGaps++
			}
		}
	}

	return t
}

func computeContent(session *engine.Session, kw config.KeywordLists) contentSignals {
	c := contentSignals{}
	msgs := session.Messages

	recentStart := len(msgs) - recentWindow
	if recentStart < 0 {
		recentStart = 0
	}

	for i, msg := range msgs {
		lower := strings.ToLower(msg.Content)
		recent := i >= recentStart

		if strings.ContainsAny(msg.Content, "?¿") {
			c.hasQuestions = true
		}
		if matchesAny(lower, kw.Problem) {
			c.problemHits++
			if recent {
				c.problemRecent++
			}
		}
		if matchesAny(lower, kw.Resolution) {
			c.resolutionHits++
			if recent {
				c.resolutionRecent++
			}
		}
		if matchesAny(lower, kw.Gratitude) {
			c.hasGratitude = true
			if recent {
				c.gratitudeRecent++
			}
		}
		if matchesAny(lower, kw.Confusion) {
			c.hasConfusion = true
		}
		if matchesAny(lower, kw.Continuation) {
			c.hasContinuation = true
		}
		if matchesAny(lower, kw.Completion) {
			c.hasCompletion = true
		}
	}
	return c
}

func computeActivity(session *engine.Session, cfg config.EngineConfig, now time.Time) activitySignals {
	a := activitySignals{flow: waitingForUser}
	msgs := session.Messages
	if len(msgs) == 0 {
		return a
	}

	users := 0
	var latencies []time.Duration
	for i, msg := range msgs {
		switch msg.Role {
		case engine.RoleUser:
			users++
			a.lastUserAt = msg.Timestamp
		case engine.RoleAssistant:
			a.lastAssistantAt = msg.Timestamp
			if i > 0 && msgs[i-1].Role == engine.RoleUser {
				prev, cur := msgs[i-1].Timestamp, msg.Timestamp
				if !prev.IsZero() && !cur.IsZero() && cur.After(prev) {
					latencies = append(latencies, cur.Sub(prev))
				}
			}
		}
	}
	a.engagementRatio = float64(users) / float64(len(msgs))
	if msgs[len(msgs)-1].Role == engine.RoleUser {
		a.flow = waitingForAssistant
	}
	if len(latencies) > 0 {
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		a.avgLatency = sum / time.Duration(len(latencies))
	}

	ref := session.LastActivity
	if ref.IsZero() {
		ref = msgs[len(msgs)-1].Timestamp
	}
	sinceLast := time.Duration(0)
	if !ref.IsZero() && now.After(ref) {
		sinceLast = now.Sub(ref)
	}
	timeout := cfg.ActiveTimeout.Duration()
	switch {
	case sinceLast < timeout:
		a.level = activityActive
	case sinceLast < time.Duration(staleMultiple)*timeout:
		a.level = activityPaused
	default:
		a.level = activityAbandoned
	}
	return a
}

// computeResolution scans forward from each problem mention for a
// resolution within the next few messages, then scores the last messages:
// +1 per resolution hit, +2 per gratitude hit, -1 per problem hit,
// normalized by the window's theoretical maximum.
func computeResolution(session *engine.Session, kw config.KeywordLists) resolutionSignals {
	r := resolutionSignals{}
	msgs := session.Messages

	for i, msg := range msgs {
		lower := strings.ToLower(msg.Content)
		if !matchesAny(lower, kw.Problem) {
			continue
		}
		resolved := false
		for j := i + 1; j <= i+resolutionScanAhead && j < len(msgs); j++ {
			if matchesAny(strings.ToLower(msgs[j].Content), kw.Resolution) {
				resolved = true
				break
			}
		}
		if resolved {
			r.problemsResolved++
		} else {
			r.openIssues++
		}
	}
	if total := r.problemsResolved + r.openIssues; total > 0 {
		r.resolvedFraction = float64(r.problemsResolved) / float64(total)
	}

	window := recentWindow
	if len(msgs) < window {
		window = len(msgs)
	}
	for i := len(msgs) - window; i < len(msgs); i++ {
		lower := strings.ToLower(msgs[i].Content)
		if matchesAny(lower, kw.Resolution) {
			r.rawScore++
		}
		if matchesAny(lower, kw.Gratitude) {
			r.rawScore += 2
		}
		if matchesAny(lower, kw.Problem) {
			r.rawScore--
		}
	}
	if window > 0 {
		r.confidence = clamp01(float64(r.rawScore) / float64(2*window))
	}
	r.isResolved = r.rawScore > 2 || r.resolvedFraction > 0.7

	return r
}

func matchesAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
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
