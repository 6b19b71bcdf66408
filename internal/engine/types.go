// Package engine defines the shared data model for the conversation
// intelligence engine: sessions and messages on the input side, and the
// derived profiles (semantic, state, relationship, decision) produced by the
// analyzers. Sessions are read-only inputs; every derived type is recomputed
// on demand and lives only in the owning analyzer's cache.
package engine

import (
	"context"
	"time"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is a single logged conversation message. Immutable once logged;
// owned by the external store.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one logged conversation: an ordered sequence of messages.
// The engine never mutates a session.
type Session struct {
	SessionID    string    `json:"session_id"`
	ProjectName  string    `json:"project_name"`
	UserID       string    `json:"user_id"`
	LastActivity time.Time `json:"last_activity"`
	Messages     []Message `json:"messages"`
}

// Entities holds named entities extracted from message text, deduplicated
// per category.
type Entities struct {
	Files        []string `json:"files,omitempty"`
	Functions    []string `json:"functions,omitempty"`
	Services     []string `json:"services,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// TopicScore is one scored topic; Score is in [0,1].
type TopicScore struct {
	Topic string  `json:"topic"`
	Score float64 `json:"score"`
}

// ErrorMention is an error-like fragment found in a message. Index is the
// position of the message in the session's message list.
type ErrorMention struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Kind  string `json:"kind"`
}

// CodeBlock is a fenced code block found in a message.
type CodeBlock struct {
	Index    int    `json:"index"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

// ContentFeatures is the derived feature set for a body of text.
// Keyword and entity slices contain no duplicates.
type ContentFeatures struct {
	Keywords   []string       `json:"keywords"`
	Entities   Entities       `json:"entities"`
	Topics     []TopicScore   `json:"topics"`
	Errors     []ErrorMention `json:"errors,omitempty"`
	CodeBlocks []CodeBlock    `json:"code_blocks,omitempty"`
}

// QAPair links a question-bearing message to the next assistant message.
type QAPair struct {
	QuestionIndex int `json:"question_index"`
	AnswerIndex   int `json:"answer_index"`
}

// Structure holds the metrics collected by the semantic analyzer's single
// linear pass over a session.
type Structure struct {
	MessageCount      int      `json:"message_count"`
	UserMessages      int      `json:"user_messages"`
	AssistantMessages int      `json:"assistant_messages"`
	ToolMessages      int      `json:"tool_messages"`
	TurnTransitions   int      `json:"turn_transitions"`
	QuestionCount     int      `json:"question_count"`
	QAPairs           []QAPair `json:"qa_pairs,omitempty"`
	CodeBlockCount    int      `json:"code_block_count"`
	ErrorCount        int      `json:"error_count"`
	LinkCount         int      `json:"link_count"`
	AvgMessageLength  float64  `json:"avg_message_length"`
}

// Sentiment is the dominant sentiment over a session. Scores sum to 1, or
// are all zero when no sentiment word matched.
type Sentiment struct {
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
}

// DriftPoint marks a chunk transition whose topic drift exceeded 0.5.
type DriftPoint struct {
	FromChunk int     `json:"from_chunk"`
	ToChunk   int     `json:"to_chunk"`
	Drift     float64 `json:"drift"`
}

// DriftReport describes how the topic composition changed across the
// session's early, middle, and late thirds.
type DriftReport struct {
	AvgDrift    float64      `json:"avg_drift"`
	DriftPoints []DriftPoint `json:"drift_points,omitempty"`
}

// SemanticProfile is the semantic analyzer's output for one session.
// Coherence and all score fields lie in [0,1].
type SemanticProfile struct {
	SessionID   string          `json:"session_id"`
	Structure   Structure       `json:"structure"`
	Features    ContentFeatures `json:"features"`
	KeyPhrases  []string        `json:"key_phrases,omitempty"`
	Sentiment   Sentiment       `json:"sentiment"`
	Coherence   float64         `json:"coherence"`
	Drift       DriftReport     `json:"drift"`
	Insights    []string        `json:"insights,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// SessionState is a session's lifecycle classification. Exactly one state
// holds per analysis; nothing is persisted between calls.
type SessionState string

const (
	StateActive    SessionState = "active"
	StateCompleted SessionState = "completed"
	StatePaused    SessionState = "paused"
	StateAbandoned SessionState = "abandoned"
	StateStuck     SessionState = "stuck"
	StateUnknown   SessionState = "unknown"
)

// StateProfile is the session-state analyzer's output for one session.
type StateProfile struct {
	SessionID          string       `json:"session_id"`
	State              SessionState `json:"state"`
	Confidence         float64      `json:"confidence"`
	Evidence           []string     `json:"evidence,omitempty"`
	DocumentationReady bool         `json:"documentation_ready"`
	DocumentationValue int          `json:"documentation_value"`
	Recommendations    []string     `json:"recommendations,omitempty"`
	NextActions        []string     `json:"next_actions,omitempty"`
}

// RelationshipType classifies how two sessions relate.
type RelationshipType string

const (
	TypeFollowUp            RelationshipType = "follow_up"
	TypeDuplicateIssue      RelationshipType = "duplicate_issue"
	TypeRelatedTopic        RelationshipType = "related_topic"
	TypeSimilarSolution     RelationshipType = "similar_solution"
	TypeContextuallyRelated RelationshipType = "contextually_related"
	TypeUnknownRelation     RelationshipType = "unknown"
)

// Dimensions holds the seven per-dimension similarity scores, each in [0,1].
// Semantic is a reserved extension point and stays at its neutral value.
type Dimensions struct {
	Content    float64 `json:"content"`
	Temporal   float64 `json:"temporal"`
	Structural float64 `json:"structural"`
	Resolution float64 `json:"resolution"`
	User       float64 `json:"user"`
	Context    float64 `json:"context"`
	Semantic   float64 `json:"semantic"`
}

// RelationshipRecord scores one candidate session against the target.
type RelationshipRecord struct {
	SessionID  string           `json:"session_id"`
	Type       RelationshipType `json:"type"`
	Confidence float64          `json:"confidence"`
	Evidence   []string         `json:"evidence,omitempty"`
	Dimensions Dimensions       `json:"dimensions"`
}

// Cluster groups sessions sharing a relationship type. Derived from
// relationship records, never persisted independently.
type Cluster struct {
	Type          RelationshipType `json:"type"`
	Sessions      []string         `json:"sessions"`
	AvgConfidence float64          `json:"avg_confidence"`
}

// RelationshipSet is the relationship mapper's output for one target.
type RelationshipSet struct {
	SessionID     string               `json:"session_id"`
	Relationships []RelationshipRecord `json:"relationships"`
	Clusters      []Cluster            `json:"clusters,omitempty"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// PlanStep is one step of a decision plan. DependsOn lists indexes of steps
// that must complete first.
type PlanStep struct {
	Step          int    `json:"step"`
	Action        string `json:"action"`
	Agent         string `json:"agent"`
	EstimatedCost int    `json:"estimated_cost"`
	DependsOn     []int  `json:"depends_on,omitempty"`
}

// DecisionPlan is built fresh per request and immutable once execution
// starts.
type DecisionPlan struct {
	ID          string     `json:"id"`
	Action      string     `json:"action"`
	Steps       []PlanStep `json:"steps"`
	TokenBudget int        `json:"token_budget"`
	Confidence  float64    `json:"confidence"`
}

// StepResult records the outcome of one executed plan step.
type StepResult struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Cost    int    `json:"cost"`
}

// ResultMetadata summarizes execution accounting.
type ResultMetadata struct {
	ExecutionTime  time.Duration `json:"execution_time"`
	TokensUsed     int           `json:"tokens_used"`
	StepsCompleted int           `json:"steps_completed"`
}

// Result is the orchestrator's canonical response shape. DetailedResults is
// present only when cumulative cost stayed under budget.
type Result struct {
	Success         bool           `json:"success"`
	Action          string         `json:"action"`
	Summary         string         `json:"summary"`
	KeyInsights     []string       `json:"key_insights,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Metadata        ResultMetadata `json:"metadata"`
	DetailedResults []StepResult   `json:"detailed_results,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Request is the unit of work handed to an analyzer. Candidates is only
// consulted by the relationship mapper.
type Request struct {
	Session    *Session
	Candidates []*Session
	Intent     string
}

// AnalyzerResult wraps an analyzer's profile output for dispatch.
type AnalyzerResult struct {
	Analyzer string
	Profile  any
}

// AnalyzerMetrics is a point-in-time snapshot of an analyzer's counters.
type AnalyzerMetrics struct {
	Invocations uint64 `json:"invocations"`
	CacheHits   uint64 `json:"cache_hits"`
	Failures    uint64 `json:"failures"`
}

// Analyzer is the capability shared by the semantic, state, and relationship
// analyzers. The orchestrator dispatches through this interface rather than
// through concrete types.
type Analyzer interface {
	Name() string
	Execute(ctx context.Context, req Request) (*AnalyzerResult, error)
	Metrics() AnalyzerMetrics
}
