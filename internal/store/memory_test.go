package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	m := &Message{UserID: "u1", Platform: "email", Body: "hello"}
	require.NoError(t, s.CreateMessage(ctx, m))
	require.NotEmpty(t, m.ID)

	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
	assert.False(t, got.IsRead)

	require.NoError(t, s.UpdateMessagePriority(ctx, m.ID, 82))
	require.NoError(t, s.MarkMessageRead(ctx, m.ID))

	got, err = s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 82, got.Priority)
	assert.True(t, got.IsRead)

	_, err = s.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateMessagePriority(ctx, "missing", 10), ErrNotFound)
}

func TestMemoryStoreListRecentOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateMessage(ctx, &Message{
			UserID:        "u1",
			Platform:      "email",
			FromContactID: "c1",
			Body:          "m",
			ReceivedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.CreateMessage(ctx, &Message{UserID: "other", Body: "x", ReceivedAt: base}))

	msgs, err := s.ListRecentMessages(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].ReceivedAt.After(msgs[1].ReceivedAt))
	assert.True(t, msgs[1].ReceivedAt.After(msgs[2].ReceivedAt))

	fromContact, err := s.ListMessagesFromContact(ctx, "u1", "c1", 0)
	require.NoError(t, err)
	assert.Len(t, fromContact, 5)
}

func TestAdjustContactImportanceClampsAndCreates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Absent row is created at CreateScore, not CreateScore+Delta.
	require.NoError(t, s.AdjustContactImportance(ctx, "u1", "c1", ImportanceAdjustment{
		Delta: 0.1, CountDelta: 1, TouchInteraction: true, CreateScore: 6.0,
	}))
	ci, err := s.GetContactImportance(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.InDelta(t, 6.0, ci.ImportanceScore, 1e-9)
	assert.Equal(t, 1, ci.InteractionCount)
	assert.False(t, ci.LastInteraction.IsZero())

	for i := 0; i < 100; i++ {
		require.NoError(t, s.AdjustContactImportance(ctx, "u1", "c1", ImportanceAdjustment{Delta: 0.3}))
	}
	ci, err = s.GetContactImportance(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, ci.ImportanceScore, 1e-9)

	for i := 0; i < 100; i++ {
		require.NoError(t, s.AdjustContactImportance(ctx, "u1", "c1", ImportanceAdjustment{Delta: -0.3}))
	}
	ci, err = s.GetContactImportance(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, ci.ImportanceScore, 1e-9)
}

func TestAdjustContactImportanceConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AdjustContactImportance(ctx, "u1", "c1", ImportanceAdjustment{
				Delta: 0.1, CountDelta: 1, CreateScore: 5.0,
			})
		}()
	}
	wg.Wait()

	ci, err := s.GetContactImportance(ctx, "u1", "c1")
	require.NoError(t, err)
	// One create at 5.0 plus 49 increments of 0.1. No lost updates.
	assert.InDelta(t, 9.9, ci.ImportanceScore, 1e-9)
	assert.Equal(t, 50, ci.InteractionCount)
}

func TestAdjustPreferenceWeightsClampsFromNeutral(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AdjustPreferenceWeights(ctx, "u1",
		map[string]float64{"deadline": 0.1}, map[string]float64{"email": -0.1}))

	p, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	// Unknown weights start at neutral 0.5 before the delta.
	assert.InDelta(t, 0.6, p.KeywordWeights["deadline"], 1e-9)
	assert.InDelta(t, 0.4, p.PlatformWeights["email"], 1e-9)

	for i := 0; i < 20; i++ {
		require.NoError(t, s.AdjustPreferenceWeights(ctx, "u1",
			map[string]float64{"deadline": 0.1}, map[string]float64{"email": -0.1}))
	}
	p, err = s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.KeywordWeights["deadline"], 1e-9)
	assert.InDelta(t, 0.0, p.PlatformWeights["email"], 1e-9)
}

func TestReplaceLearnedWeightsOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AdjustPreferenceWeights(ctx, "u1",
		map[string]float64{"old": 0.2}, nil))
	require.NoError(t, s.ReplaceLearnedWeights(ctx, "u1",
		map[string]float64{"boss@co": 1.4},
		map[string]float64{"launch": 0.9},
		map[string]float64{"slack": -0.2},
		[]string{"replies fast to slack"}))

	p, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	_, hasOld := p.KeywordWeights["old"]
	assert.False(t, hasOld, "replace must overwrite, not blend")
	assert.InDelta(t, 1.0, p.SenderWeights["boss@co"], 1e-9)
	assert.InDelta(t, 0.9, p.KeywordWeights["launch"], 1e-9)
	assert.InDelta(t, 0.0, p.PlatformWeights["slack"], 1e-9)
	assert.Equal(t, []string{"replies fast to slack"}, p.Patterns)
}

func TestPreferencesCloneOnRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AdjustPreferenceWeights(ctx, "u1", map[string]float64{"k": 0.1}, nil))

	p, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	p.KeywordWeights["k"] = 0.99

	again, err := s.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, again.KeywordWeights["k"], 1e-9)
}

func TestInteractionLogWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendInteraction(ctx, &InteractionEvent{
			UserID:    "u1",
			EventType: EventMessageRead,
			Timestamp: now.Add(-time.Duration(i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, s.AppendInteraction(ctx, &InteractionEvent{
		UserID:    "u1",
		EventType: EventMessageRead,
		Timestamp: now.Add(-10 * 24 * time.Hour),
	}))

	evs, err := s.ListInteractionsSince(ctx, "u1", now.Add(-7*24*time.Hour), 500)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
}

func TestTopicMergeHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	topic := &ConversationTopic{UserID: "u1", Name: "q3 launch", Importance: 6, MessageCount: 1}
	require.NoError(t, s.CreateTopic(ctx, topic))

	found, err := s.FindTopic(ctx, "u1", "q3 launch")
	require.NoError(t, err)
	require.Equal(t, topic.ID, found.ID)

	at := time.Now()
	require.NoError(t, s.TouchTopic(ctx, topic.ID, 8, at))
	require.NoError(t, s.TouchTopic(ctx, topic.ID, 4, at))

	found, err = s.FindTopic(ctx, "u1", "q3 launch")
	require.NoError(t, err)
	assert.Equal(t, 8, found.Importance, "importance only ever rises")
	assert.Equal(t, 3, found.MessageCount)

	_, err = s.FindTopic(ctx, "u1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmbeddingUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertEmbedding(ctx, &MessageEmbedding{
		MessageID: "m1", UserID: "u1", Vector: []float32{1, 0}, Model: "a",
	}))
	require.NoError(t, s.UpsertEmbedding(ctx, &MessageEmbedding{
		MessageID: "m1", UserID: "u1", Vector: []float32{0, 1}, Model: "b",
	}))

	e, err := s.GetEmbedding(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, e.Vector)
	assert.Equal(t, "b", e.Model)

	all, err := s.ListEmbeddings(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListUserIDsUnionsSources(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateMessage(ctx, &Message{UserID: "a", Body: "x"}))
	require.NoError(t, s.AdjustPreferenceWeights(ctx, "b", map[string]float64{"k": 0.1}, nil))
	require.NoError(t, s.AppendInteraction(ctx, &InteractionEvent{UserID: "c", EventType: EventMessageRead}))

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
