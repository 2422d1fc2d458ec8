package store

import "time"

// Message is an inbound message normalized by a source adapter. The pipeline
// creates it once; only Priority and IsRead are mutated afterward.
type Message struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Platform      string    `json:"platform"`
	FromContactID string    `json:"from_contact_id,omitempty"`
	From          string    `json:"from,omitempty"`
	FromName      string    `json:"from_name,omitempty"`
	ExternalID    string    `json:"external_id,omitempty"`
	ThreadID      string    `json:"thread_id,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Body          string    `json:"body"`
	Snippet       string    `json:"snippet,omitempty"`
	Priority      int       `json:"priority"`
	IsRead        bool      `json:"is_read"`
	ReceivedAt    time.Time `json:"received_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// ContactImportance is a learned, bounded scalar per (user, contact) pair.
// ImportanceScore stays in [0,10]; 5 is neutral.
type ContactImportance struct {
	UserID           string    `json:"user_id"`
	ContactID        string    `json:"contact_id"`
	ImportanceScore  float64   `json:"importance_score"`
	InteractionCount int       `json:"interaction_count"`
	LastInteraction  time.Time `json:"last_interaction"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UserPreference is the per-user singleton of learned weight maps consumed
// by the priority scorer. All weights are clamped to [0,1] on every write.
type UserPreference struct {
	UserID          string             `json:"user_id"`
	KeywordWeights  map[string]float64 `json:"keyword_weights"`
	PlatformWeights map[string]float64 `json:"platform_weights"`
	SenderWeights   map[string]float64 `json:"sender_weights"`
	Patterns        []string           `json:"patterns,omitempty"`
	LastLearningRun time.Time          `json:"last_learning_run"`
	SamplesAnalyzed int                `json:"samples_analyzed"`
}

// EventType enumerates trackable user interactions.
type EventType string

const (
	EventMessageOpened     EventType = "message_opened"
	EventMessageRead       EventType = "message_read"
	EventMessageReplied    EventType = "message_replied"
	EventMessageStarred    EventType = "message_starred"
	EventMessageArchived   EventType = "message_archived"
	EventMessageDeleted    EventType = "message_deleted"
	EventPriorityIncreased EventType = "priority_increased"
	EventPriorityDecreased EventType = "priority_decreased"
	EventContactClicked    EventType = "contact_clicked"
	EventTodoCompleted     EventType = "todo_completed"
	EventTodoDismissed     EventType = "todo_dismissed"
)

var validEventTypes = map[EventType]bool{
	EventMessageOpened:     true,
	EventMessageRead:       true,
	EventMessageReplied:    true,
	EventMessageStarred:    true,
	EventMessageArchived:   true,
	EventMessageDeleted:    true,
	EventPriorityIncreased: true,
	EventPriorityDecreased: true,
	EventContactClicked:    true,
	EventTodoCompleted:     true,
	EventTodoDismissed:     true,
}

// Valid reports whether t is a known interaction event type.
func (t EventType) Valid() bool { return validEventTypes[t] }

// InteractionEvent is an append-only log record of a user action. It is the
// sole training signal for preference learning and is never mutated.
type InteractionEvent struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	EventType EventType         `json:"event_type"`
	MessageID string            `json:"message_id,omitempty"`
	ContactID string            `json:"contact_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// TodoItem is an action item extracted from a message by the todo handler.
type TodoItem struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	Priority      int       `json:"priority"`
	DueDate       string    `json:"due_date,omitempty"`
	ExtractedFrom string    `json:"extracted_from,omitempty"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationTopic aggregates a recurring conversation theme per user.
// Topics are merged by (user, name) rather than duplicated.
type ConversationTopic struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category,omitempty"`
	Importance     int       `json:"importance"`
	Keywords       []string  `json:"keywords,omitempty"`
	Sentiment      string    `json:"sentiment,omitempty"`
	MessageCount   int       `json:"message_count"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// MessageEmbedding is a semantic vector for one message, keyed by message id.
type MessageEmbedding struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Goal is a user goal surfaced by the sampled goal-extraction job.
type Goal struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Goal       string    `json:"goal"`
	Category   string    `json:"category,omitempty"`
	Priority   int       `json:"priority"`
	Confidence float64   `json:"confidence"`
	Keywords   []string  `json:"keywords,omitempty"`
	Evidence   string    `json:"evidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClampWeight bounds a preference weight to [0,1].
func ClampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// ClampImportance bounds a contact importance score to [0,10].
func ClampImportance(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
