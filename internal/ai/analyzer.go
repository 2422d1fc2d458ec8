// Package ai is the consumption contract for the external analysis service.
// The pipeline and learner depend on the Analyzer interface only; the
// concrete Client speaks to an OpenAI-compatible endpoint through
// langchaingo, and Disabled degrades every call gracefully when no key is
// configured.
package ai

import (
	"context"
	"time"
)

// MessageSample is a compact message view passed into analysis prompts.
type MessageSample struct {
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	Platform   string    `json:"platform,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// TodoRequest asks for action items hidden in one message.
type TodoRequest struct {
	UserID    string
	MessageID string
	Subject   string
	Body      string
	Platform  string
	Sender    string
}

// TodoCandidate is one extracted action item. Confidence is the model's own
// estimate in [0,1]; callers decide the persistence threshold.
type TodoCandidate struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    int     `json:"priority"`
	DueDate     string  `json:"due_date,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// TopicRequest asks for the dominant conversation topic across recent
// messages from one contact.
type TopicRequest struct {
	UserID      string
	ContactName string
	Messages    []MessageSample
}

// TopicResult describes one conversation topic.
type TopicResult struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Importance  int      `json:"importance"`
	Keywords    []string `json:"keywords,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
}

// GoalRequest asks for user goals evidenced by recent messages.
type GoalRequest struct {
	UserID   string
	Messages []MessageSample
}

// GoalCandidate is one inferred user goal.
type GoalCandidate struct {
	Goal       string   `json:"goal"`
	Category   string   `json:"category,omitempty"`
	Priority   int      `json:"priority"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
	Evidence   string   `json:"evidence,omitempty"`
}

// InteractionDigest summarizes a user's recent behavior for pattern
// discovery. The learner builds it from the interaction log.
type InteractionDigest struct {
	UserID          string         `json:"user_id"`
	WindowDays      int            `json:"window_days"`
	TotalEvents     int            `json:"total_events"`
	EventCounts     map[string]int `json:"event_counts"`
	RepliedContacts map[string]int `json:"replied_contacts,omitempty"`
	ReadPlatforms   map[string]int `json:"read_platforms,omitempty"`
	RaisedKeywords  []string       `json:"raised_keywords,omitempty"`
	LoweredKeywords []string       `json:"lowered_keywords,omitempty"`
}

// PatternWeights is the discovery output: full replacement weight maps plus
// human-readable pattern descriptions.
type PatternWeights struct {
	SenderWeights   map[string]float64 `json:"sender_weights"`
	KeywordWeights  map[string]float64 `json:"keyword_weights"`
	PlatformWeights map[string]float64 `json:"platform_weights"`
	Patterns        []string           `json:"patterns"`
}

// Analyzer is everything the pipeline and learner need from the analysis
// service. Implementations must be safe for concurrent use.
type Analyzer interface {
	ExtractTodos(ctx context.Context, req TodoRequest) ([]TodoCandidate, error)
	ExtractTopic(ctx context.Context, req TopicRequest) (*TopicResult, error)
	ExtractGoals(ctx context.Context, req GoalRequest) ([]GoalCandidate, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	DiscoverPatterns(ctx context.Context, digest InteractionDigest) (*PatternWeights, error)

	// Enabled reports whether real analysis is configured. Callers use it to
	// pick degraded paths (regex todo fallback, skipped discovery).
	Enabled() bool
}
