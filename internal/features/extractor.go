// Package features turns raw message text into content features: keywords,
// named entities, scored topics, extracted errors, and code blocks. It also
// provides the similarity primitives shared by the semantic and relationship
// analyzers. All extraction is deterministic pattern matching over fixed
// vocabularies; there is no trained model anywhere in this package.
package features

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sessionlens/sessiond/internal/engine"
)

// topicScoreDivisor normalizes raw keyword occurrence counts into [0,1].
const topicScoreDivisor = 3.0

// maxErrorTextBytes caps the captured error line; truncation never splits
// a multi-byte rune.
const maxErrorTextBytes = 200

// Extractor holds the compiled patterns. Construct once and share; it is
// safe for concurrent use.
type Extractor struct {
	filePattern     *regexp.Regexp
	funcDeclPattern *regexp.Regexp
	funcCallPattern *regexp.Regexp
	servicePattern  *regexp.Regexp
	techPatterns    map[string]*regexp.Regexp
	errorPattern    *regexp.Regexp
	codePattern     *regexp.Regexp
	linkPattern     *regexp.Regexp
}

// NewExtractor compiles the fixed pattern set.
func NewExtractor() *Extractor {
	techPatterns := make(map[string]*regexp.Regexp, len(technologies))
	for _, tech := range technologies {
		techPatterns[tech] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(tech) + `\b`)
	}

	return &Extractor{
		filePattern:     regexp.MustCompile(`[\w./-]+\.(?:` + fileExtensions + `)\b`),
		funcDeclPattern: regexp.MustCompile(`\b(?:func|def|function|fn)\s+([A-Za-z_][A-Za-z0-9_]*)`),
		funcCallPattern: regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]{2,})\(\)`),
		servicePattern:  regexp.MustCompile(`\b[a-z][a-z0-9]+(?:_[a-z0-9]+)+\b`),
		techPatterns:    techPatterns,
		errorPattern:    regexp.MustCompile(`(?im)^.*\b(error|exception|panic|fatal|failed|traceback)\b.*$`),
		codePattern:     regexp.MustCompile("(?s)```([a-zA-Z0-9+#-]*)\n?(.*?)```"),
		linkPattern:     regexp.MustCompile(`https?://[^\s)>"']+`),
	}
}

// Tokenize splits text into lowercase alphanumeric terms.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' ||
		(r >= 'à' && r <= 'ÿ') // accented Latin, keeps Spanish words whole
}

// Keywords lowercases, tokenizes words of length >= 3, removes stop words,
// and deduplicates. No ordering is guaranteed beyond first occurrence.
func (e *Extractor) Keywords(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

// Entities applies the fixed regex families and deduplicates each category
// independently.
func (e *Extractor) Entities(text string) engine.Entities {
	var ents engine.Entities

	ents.Files = dedupe(e.filePattern.FindAllString(text, -1))

	var fns []string
	for _, m := range e.funcDeclPattern.FindAllStringSubmatch(text, -1) {
		fns = append(fns, m[1])
	}
	for _, m := range e.funcCallPattern.FindAllStringSubmatch(text, -1) {
		fns = append(fns, m[1])
	}
	ents.Functions = dedupe(fns)

	ents.Services = dedupe(e.servicePattern.FindAllString(text, -1))

	lower := strings.ToLower(text)
	var techs []string
	for _, tech := range technologies {
		if e.techPatterns[tech].MatchString(lower) {
			techs = append(techs, tech)
		}
	}
	ents.Technologies = techs

	return ents
}

// Topics scores each topic in the fixed table as
// min(keyword occurrence count / 3, 1), omits zero scores, and returns the
// result sorted descending by score. The sort is stable so equal scores
// keep table order.
func (e *Extractor) Topics(text string) []engine.TopicScore {
	freq := make(map[string]int)
	for _, tok := range Tokenize(text) {
		freq[tok]++
	}

	var topics []engine.TopicScore
	for _, entry := range topicTable {
		count := 0
		for _, kw := range entry.keywords {
			count += freq[kw]
		}
		if count == 0 {
			continue
		}
		score := float64(count) / topicScoreDivisor
		if score > 1 {
			score = 1
		}
		topics = append(topics, engine.TopicScore{Topic: entry.name, Score: score})
	}

	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].Score > topics[j].Score
	})
	return topics
}

// Errors scans each message independently for error-like lines. Index is
// the message's position in the session's message list.
func (e *Extractor) Errors(messages []engine.Message) []engine.ErrorMention {
	var mentions []engine.ErrorMention
	for i, msg := range messages {
		for _, m := range e.errorPattern.FindAllStringSubmatch(msg.Content, -1) {
			text := strings.TrimSpace(m[0])
			if len(text) > maxErrorTextBytes {
				cut := maxErrorTextBytes
				for cut > 0 && !utf8.RuneStart(text[cut]) {
					cut--
				}
				text = text[:cut]
			}
			mentions = append(mentions, engine.ErrorMention{
				Index: i,
				Text:  text,
				Kind:  strings.ToLower(m[1]),
			})
		}
	}
	return mentions
}

// CodeBlocks scans each message independently for fenced code blocks.
func (e *Extractor) CodeBlocks(messages []engine.Message) []engine.CodeBlock {
	var blocks []engine.CodeBlock
	for i, msg := range messages {
		for _, m := range e.codePattern.FindAllStringSubmatch(msg.Content, -1) {
			blocks = append(blocks, engine.CodeBlock{
				Index:    i,
				Language: m[1],
				Text:     strings.TrimSpace(m[2]),
			})
		}
	}
	return blocks
}

// Links counts http(s) links in a text.
func (e *Extractor) Links(text string) int {
	return len(e.linkPattern.FindAllString(text, -1))
}

// Features extracts the full ContentFeatures for a session: text-level
// features over the concatenated content, per-message errors and code
// blocks over the message list.
func (e *Extractor) Features(session *engine.Session) engine.ContentFeatures {
	full := SessionText(session)
	return engine.ContentFeatures{
		Keywords:   e.Keywords(full),
		Entities:   e.Entities(full),
		Topics:     e.Topics(full),
		Errors:     e.Errors(session.Messages),
		CodeBlocks: e.CodeBlocks(session.Messages),
	}
}

// SessionText concatenates all message content. Missing content is treated
// as an empty string, never an error.
func SessionText(session *engine.Session) string {
	var sb strings.Builder
	for _, m := range session.Messages {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
