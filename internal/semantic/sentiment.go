package semantic

import (
	"github.com/sessionlens/sessiond/internal/engine"
	"github.com/sessionlens/sessiond/internal/features"
)

// Fixed bilingual sentiment vocabularies. Matching is token-exact over the
// lowercased session text; counts across all messages feed one score per
// category.

var positiveWords = map[string]struct{}{
	"great": {}, "perfect": {}, "awesome": {}, "excellent": {},
	"thanks": {}, "thank": {}, "works": {}, "working": {}, "solved": {},
	"fixed": {}, "good": {}, "nice": {}, "helpful": {}, "love": {},
	"gracias": {}, "perfecto": {}, "excelente": {}, "genial": {},
	"funciona": {}, "resuelto": {}, "bueno": {}, "bien": {},
}

var negativeWords = map[string]struct{}{
	"error": {}, "broken": {}, "fail": {}, "failed": {}, "failing": {},
	"crash": {}, "wrong": {}, "bad": {}, "stuck": {}, "confused": {},
	"frustrating": {}, "impossible": {}, "worse": {}, "annoying": {},
	"fallo": {}, "roto": {}, "mal": {}, "problema": {}, "imposible": {},
	"confundido": {}, "frustrante": {},
}

var neutralWords = map[string]struct{}{
	"okay": {}, "fine": {}, "maybe": {}, "perhaps": {}, "possibly": {},
	"normal": {}, "standard": {}, "usual": {}, "typical": {},
	"quizás": {}, "quizas": {}, "regular": {}, "posible": {},
}

// scoreSentiment counts sentiment-word matches across all messages. The
// dominant category wins with its share as confidence; scores sum to 1.
// When nothing matches, the result is neutral at 0.5 with all-zero scores.
func scoreSentiment(session *engine.Session) engine.Sentiment {
	var pos, neg, neu int
	for _, msg := range session.Messages {
		for _, tok := range features.Tokenize(msg.Content) {
			if _, ok := positiveWords[tok]; ok {
				pos++
			}
			if _, ok := negativeWords[tok]; ok {
				neg++
			}
			if _, ok := neutralWords[tok]; ok {
				neu++
			}
		}
	}

	total := pos + neg + neu
	if total == 0 {
		return engine.Sentiment{
			Label:      "neutral",
			Confidence: 0.5,
			Scores:     map[string]float64{"positive": 0, "negative": 0, "neutral": 0},
		}
	}

	scores := map[string]float64{
		"positive": float64(pos) / float64(total),
		"negative": float64(neg) / float64(total),
		"neutral":  float64(neu) / float64(total),
	}

	label, confidence := "neutral", scores["neutral"]
	if scores["positive"] > confidence {
		label, confidence = "positive", scores["positive"]
	}
	if scores["negative"] > confidence {
		label, confidence = "negative", scores["negative"]
	}

	return engine.Sentiment{Label: label, Confidence: confidence, Scores: scores}
}
