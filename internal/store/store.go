// Package store defines the persistence contract for the message pipeline
// and its two implementations: a threadsafe in-memory store used by tests
// and local development, and a pgx-backed Postgres store.
//
// Shared per-user state (contact importance, preference weight maps) is only
// ever mutated through the Adjust*/Replace* operations below, which every
// implementation must apply atomically. Callers never read-modify-write
// these rows themselves.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ImportanceAdjustment describes one atomic change to a contact-importance
// row. If the row is absent it is created with CreateScore (clamped).
type ImportanceAdjustment struct {
	Delta            float64
	CountDelta       int
	TouchInteraction bool
	CreateScore      float64
}

// Store is the full persistence contract used by the pipeline, tracker and
// learner. Implementations must be safe for concurrent use.
type Store interface {
	// Messages.
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessagePriority(ctx context.Context, id string, priority int) error
	MarkMessageRead(ctx context.Context, id string) error
	ListRecentMessages(ctx context.Context, userID string, limit int) ([]*Message, error)
	ListMessagesFromContact(ctx context.Context, userID, contactID string, limit int) ([]*Message, error)

	// Contact importance (atomic adjustments, clamped to [0,10]).
	GetContactImportance(ctx context.Context, userID, contactID string) (*ContactImportance, error)
	AdjustContactImportance(ctx context.Context, userID, contactID string, adj ImportanceAdjustment) error

	// Preferences (weight maps clamped to [0,1] on every write).
	GetPreferences(ctx context.Context, userID string) (*UserPreference, error)
	AdjustPreferenceWeights(ctx context.Context, userID string, keywordDeltas, platformDeltas map[string]float64) error
	ReplaceLearnedWeights(ctx context.Context, userID string, sender, keyword, platform map[string]float64, patterns []string) error
	RecordLearningRun(ctx context.Context, userID string, samples int, at time.Time) error

	// Interaction log (append-only).
	AppendInteraction(ctx context.Context, ev *InteractionEvent) error
	ListInteractionsSince(ctx context.Context, userID string, since time.Time, limit int) ([]*InteractionEvent, error)

	// Derived artifacts.
	CreateTodo(ctx context.Context, t *TodoItem) error
	ListTodos(ctx context.Context, userID string) ([]*TodoItem, error)
	FindTopic(ctx context.Context, userID, name string) (*ConversationTopic, error)
	CreateTopic(ctx context.Context, t *ConversationTopic) error
	TouchTopic(ctx context.Context, id string, importance int, at time.Time) error
	UpsertEmbedding(ctx context.Context, e *MessageEmbedding) error
	GetEmbedding(ctx context.Context, messageID string) (*MessageEmbedding, error)
	ListEmbeddings(ctx context.Context, userID string) ([]*MessageEmbedding, error)
	CreateGoal(ctx context.Context, g *Goal) error
	ListGoals(ctx context.Context, userID string) ([]*Goal, error)

	// ListUserIDs returns all users with any stored state, for batch learning.
	ListUserIDs(ctx context.Context) ([]string, error)
}
