package sessionstate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionlens/sessiond/internal/config"
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/logging"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a := New(config.Default().Engine, logging.NewNop())
	a.now = func() time.Time { return testNow }
	return a
}

// buildSession places the last message lastGap before testNow, with one
// minute between consecutive messages.
func buildSession(id string, lastGap time.Duration, turns []engine.Message) *engine.Session {
	last := testNow.Add(-lastGap)
	for i := range turns {
		turns[i].ID = fmt.Sprintf("%s-m%d", id, i)
		turns[i].SessionID = id
		turns[i].Timestamp = last.Add(-time.Duration(len(turns)-1-i) * time.Minute)
	}
	return &engine.Session{
		SessionID:    id,
		UserID:       "u1",
		Messages:     turns,
		LastActivity: last,
	}
}

func user(content string) engine.Message {
	return engine.Message{Role: engine.RoleUser, Content: content}
}

func assistant(content string) engine.Message {
	return engine.Message{Role: engine.RoleAssistant, Content: content}
}

func TestCadenceSignalsSurfaceAsEvidence(t *testing.T) {
	a := newTestAnalyzer(t)
	start := testNow.Add(-30 * time.Minute)
	session := &engine.Session{
		SessionID:    "cadence",
		UserID:       "u1",
		LastActivity: start.Add(20 * time.Minute),
		Messages: []engine.Message{
			{ID: "m0", Role: engine.RoleUser, Content: "the export job crashes", Timestamp: start},
			{ID: "m1", Role: engine.RoleAssistant, Content: "looking at the stack now", Timestamp: start.Add(time.Minute)},
			{ID: "m2", Role: engine.RoleUser, Content: "any luck?", Timestamp: start.Add(20 * time.Minute)},
		},
	}

	profile, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)

	// Two messages land in the first 5-minute bucket, three buckets sit
	// empty before the late follow-up, and the one user->assistant pair
	// took a minute.
	assert.Contains(t, profile.Evidence, "busiest 5-minute stretch held 2 messages")
	assert.Contains(t, profile.Evidence, "3 idle 5-minute stretch(es) mid-session")
	assert.Contains(t, profile.Evidence, "assistant replies averaged 1m0s")
}

func TestClassifyEmptySessionUnknown(t *testing.T) {
	a := newTestAnalyzer(t)

	profile, err := a.Analyze(context.Background(), &engine.Session{
		SessionID: "empty",
		Messages:  []engine.Message{},
	})
	require.NoError(t, err)

	assert.Equal(t, engine.StateUnknown, profile.State)
	assert.Equal(t, 0.0, profile.Confidence)
	assert.Equal(t, []string{"session has no messages"}, profile.Evidence)
	assert.False(t, profile.DocumentationReady)
}

func TestClassifyNilMessagesIsError(t *testing.T) {
	a := newTestAnalyzer(t)

	_, err := a.Analyze(context.Background(), &engine.Session{SessionID: "s"})
	require.ErrorIs(t, err, engine.ErrMissingMessages)
}

func TestClassifyActive(t *testing.T) {
	a := newTestAnalyzer(t)
	session := buildSession("active", 2*time.Minute, []engine.Message{
		user("how should I structure the config?"),
		assistant("one approach is a single yaml file"),
		user("can you show an example?"),
	})

	profile, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, engine.StateActive, profile.State)
	assert.InDelta(t, 0.95, profile.Confidence, 1e-9, "0.90 base plus question bonus")
	assert.NotEmpty(t, profile.Evidence)
}

func TestClassifyCompletedWithGratitude(t *testing.T) {
	a := newTestAnalyzer(t)
	// Last three messages carry resolution and gratitude language; the
	// earlier problem mentions each find a resolution within three
	// messages.
	session := buildSession("completed", 5*time.Minute, []engine.Message{
		user("the deployment has an error, something is broken"),
		assistant("the image tag is wrong, I pushed a fix, arreglado"),
		user("one more problem with the config file"),
		assistant("that is solved by quoting the value"),
		user("gracias, perfecto, funciona"),
		assistant("perfect, that worked, listo"),
	})

	profile, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, engine.StateCompleted, profile.State)
	assert.GreaterOrEqual(t, profile.Confidence, 0.8)
	assert.True(t, profile.DocumentationReady, "six resolved messages clear the default threshold")
	assert.GreaterOrEqual(t, profile.DocumentationValue, 50)
}

func TestClassifyPaused(t *testing.T) {
	a := newTestAnalyzer(t)
	// One hour idle: past the 30-minute active timeout, under the 2-hour
	// stale mark.
	session := buildSession("paused", time.Hour, []engine.Message{
		user("I want to migrate the schema next week"),
		assistant("sounds good, ping me with the table list"),
	})

	profile, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, engine.StatePaused, profile.State)
	assert.InDelta(t, 0.75, profile.Confidence, 1e-9)
}

func TestClassifyAbandonedWithOpenIssues(t *testing.T) {
	a := newTestAnalyzer(t)
	session := buildSession("abandoned", 6*time.Hour, []engine.Message{
		user("the login crash is back, this bug again"),
		assistant("can you attach the logs?"),
	})

	profile, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, engine.StateAbandoned, profile.State)
	assert.InDelta(t, 0.90, profile.Confidence, 1e-9, "0.80 base plus open-issue bonus")
	assert.NotEmpty(t, profile.Recommendations)
}

func TestClassifyIsDeterministic(t *testing.T) {
	cfg := config.Default().Engine
	session := buildSession("det", 5*time.Minute, []engine.Message{
		user("the api request fails with an error"),
		assistant("add the missing header"),
		user("gracias, works now, perfecto"),
	})

	var states []engine.SessionState
	var confidences []float64
	for i := 0; i < 3; i++ {
		a := New(cfg, logging.NewNop())
		a.now = func() time.Time { return testNow }
		profile, err := a.Analyze(context.Background(), session)
		require.NoError(t, err)
		states = append(states, profile.State)
		confidences = append(confidences, profile.Confidence)
	}

	assert.Equal(t, states[0], states[1])
	assert.Equal(t, states[1], states[2])
	assert.Equal(t, confidences[0], confidences[1])
	assert.Equal(t, confidences[1], confidences[2])
}

func TestMalformedTimestampsDegradeGracefully(t *testing.T) {
	a := newTestAnalyzer(t)
	session := &engine.Session{
		SessionID: "zero-ts",
		Messages: []engine.Message{
			{Role: engine.RoleUser, Content: "hello there"},
			{Role: engine.RoleAssistant, Content: "hi, what can I do?"},
		},
	}

	profile, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)
	// Zero timestamps read as "just now", so the session classifies as
	// in flight rather than failing.
	assert.Equal(t, engine.StateActive, profile.State)
}

func TestDocumentationValueCapped(t *testing.T) {
	a := newTestAnalyzer(t)
	msgs := []engine.Message{
		user("the build fails with an error in ci"),
		assistant("pin the toolchain version, that is the usual fix, solved"),
		user("another problem: the cache step is broken"),
		assistant("bump the cache key, fixed"),
		user("gracias, perfecto, works now"),
		assistant("listo, done"),
	}
	session := buildSession("cap", 10*time.Minute, msgs)

	profile, err := a.Analyze(context.Background(), session)
	require.NoError(t, err)

	assert.LessOrEqual(t, profile.DocumentationValue, 100)
	assert.GreaterOrEqual(t, profile.DocumentationValue, 0)
}

func TestResolutionScan(t *testing.T) {
	kw := config.Default().Engine.Keywords
	session := buildSession("scan", time.Minute, []engine.Message{
		user("there is a bug in the parser"),
		assistant("found it, fixed"),
		user("the lexer also has an issue"),
		assistant("let me look"),
		user("any update?"),
		assistant("not yet"),
	})

	r := computeResolution(session, kw)

	assert.Equal(t, 1, r.problemsResolved, "parser bug resolved within the scan window")
	assert.Equal(t, 1, r.openIssues, "lexer issue never resolved")
	assert.InDelta(t, 0.5, r.resolvedFraction, 1e-9)
	assert.False(t, r.isResolved)
}
