package features

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionlens/sessiond/internal/engine"
)

func TestKeywordsFiltersAndDeduplicates(t *testing.T) {
	e := NewExtractor()

	keywords := e.Keywords("The database and the database failed, fix it")

	assert.Contains(t, keywords, "database")
	assert.Contains(t, keywords, "failed")
	assert.Contains(t, keywords, "fix")
	assert.NotContains(t, keywords, "the", "stop words are removed")
	assert.NotContains(t, keywords, "and")
	assert.NotContains(t, keywords, "it", "short tokens are removed")

	seen := make(map[string]int)
	for _, kw := range keywords {
		seen[kw]++
	}
	for kw, n := range seen {
		assert.Equal(t, 1, n, "keyword %q appears more than once", kw)
	}
}

func TestKeywordsSpanishStopWords(t *testing.T) {
	e := NewExtractor()

	keywords := e.Keywords("el error está en la configuración del servidor")

	assert.Contains(t, keywords, "error")
	assert.Contains(t, keywords, "configuración")
	assert.NotContains(t, keywords, "del")
	assert.NotContains(t, keywords, "está")
}

func TestEntities(t *testing.T) {
	e := NewExtractor()

	text := "The bug is in handler.go, in func processOrder called from main(). " +
		"Check the payment_service logs; we run postgres and redis."
	ents := e.Entities(text)

	assert.Contains(t, ents.Files, "handler.go")
	assert.Contains(t, ents.Functions, "processOrder")
	assert.Contains(t, ents.Functions, "main")
	assert.Contains(t, ents.Services, "payment_service")
	assert.Contains(t, ents.Technologies, "postgres")
	assert.Contains(t, ents.Technologies, "redis")
}

func TestEntitiesDeduplicated(t *testing.T) {
	e := NewExtractor()

	ents := e.Entities("main.go main.go main.go")

	assert.Equal(t, []string{"main.go"}, ents.Files)
}

func TestTopicsScoringAndOrder(t *testing.T) {
	e := NewExtractor()

	// "error bug fix crash" scores debugging 4/3 -> capped at 1;
	// one "deploy" scores deployment 1/3.
	topics := e.Topics("error bug fix crash during deploy")

	require.Len(t, topics, 2)
	assert.Equal(t, "debugging", topics[0].Topic)
	assert.Equal(t, 1.0, topics[0].Score)
	assert.Equal(t, "deployment", topics[1].Topic)
	assert.InDelta(t, 1.0/3.0, topics[1].Score, 1e-9)
}

func TestTopicsOmitZeroScores(t *testing.T) {
	e := NewExtractor()
	assert.Empty(t, e.Topics("completely unrelated chatter"))
}

func TestTopicsIdempotent(t *testing.T) {
	e := NewExtractor()
	text := "the deploy pipeline failed with a database migration error"

	first := e.Topics(text)
	second := e.Topics(text)

	assert.Equal(t, first, second, "topic extraction is a pure function of text")
}

func TestErrorTextTruncatesOnRuneBoundary(t *testing.T) {
	e := NewExtractor()
	messages := []engine.Message{
		{Content: "error: " + strings.Repeat("á", 150)},
	}

	mentions := e.Errors(messages)

	require.Len(t, mentions, 1)
	assert.LessOrEqual(t, len(mentions[0].Text), 200)
	assert.True(t, utf8.ValidString(mentions[0].Text))
}

func TestErrorsPerMessageWithIndex(t *testing.T) {
	e := NewExtractor()
	messages := []engine.Message{
		{Content: "everything looks fine"},
		{Content: "Error: connection refused\nsecond line is clean"},
		{Content: "the build failed again"},
	}

	mentions := e.Errors(messages)

	require.Len(t, mentions, 2)
	assert.Equal(t, 1, mentions[0].Index)
	assert.Equal(t, "error", mentions[0].Kind)
	assert.Equal(t, 2, mentions[1].Index)
	assert.Equal(t, "failed", mentions[1].Kind)
}

func TestCodeBlocks(t *testing.T) {
	e := NewExtractor()
	messages := []engine.Message{
		{Content: "try this:\n```go\nfmt.Println(\"hi\")\n```"},
	}

	blocks := e.CodeBlocks(messages)

	require.Len(t, blocks, 1)
	assert.Equal(t, 0, blocks[0].Index)
	assert.Equal(t, "go", blocks[0].Language)
	assert.Equal(t, `fmt.Println("hi")`, blocks[0].Text)
}

func TestFeaturesOverSession(t *testing.T) {
	e := NewExtractor()
	session := &engine.Session{
		SessionID: "s1",
		Messages: []engine.Message{
			{Role: engine.RoleUser, Content: "the deploy to kubernetes failed", Timestamp: time.Now()},
			{Role: engine.RoleAssistant, Content: "check the rollout config in deploy.yaml", Timestamp: time.Now()},
		},
	}

	feats := e.Features(session)

	assert.Contains(t, feats.Keywords, "deploy")
	assert.Contains(t, feats.Entities.Technologies, "kubernetes")
	require.NotEmpty(t, feats.Topics)
	assert.Equal(t, "deployment", feats.Topics[0].Topic)
}
