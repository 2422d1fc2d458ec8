package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxtriage/internal/ai"
	"github.com/inboxtriage/internal/scoring"
	"github.com/inboxtriage/internal/store"
)

var learnNow = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

type stubAnalyzer struct {
	ai.Disabled
	enabled bool
	digests []ai.InteractionDigest
	weights *ai.PatternWeights
}

func (s *stubAnalyzer) Enabled() bool { return s.enabled }

func (s *stubAnalyzer) DiscoverPatterns(_ context.Context, d ai.InteractionDigest) (*ai.PatternWeights, error) {
	s.digests = append(s.digests, d)
	return s.weights, nil
}

func newLearner(st store.Store, analyzer ai.Analyzer) *Learner {
	l := New(st, analyzer)
	l.now = func() time.Time { return learnNow }
	return l
}

func pad(t *testing.T, st store.Store, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, st.AppendInteraction(context.Background(), &store.InteractionEvent{
			UserID:    userID,
			EventType: store.EventMessageOpened,
			Timestamp: learnNow.Add(-time.Hour),
		}))
	}
}

func TestRunSkipsBelowMinimumSamples(t *testing.T) {
	st := store.NewMemoryStore()
	l := newLearner(st, ai.Disabled{})
	pad(t, st, "u1", 9)

	outcome, err := l.Run(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)

	p, err := st.GetPreferences(context.Background(), "u1")
	if err == nil {
		assert.True(t, p.LastLearningRun.IsZero(), "skipped runs leave no bookkeeping")
	}
}

func TestRunIgnoresEventsOutsideWindow(t *testing.T) {
	st := store.NewMemoryStore()
	l := newLearner(st, ai.Disabled{})
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, st.AppendInteraction(ctx, &store.InteractionEvent{
			UserID:    "u1",
			EventType: store.EventMessageOpened,
			Timestamp: learnNow.Add(-10 * 24 * time.Hour),
		}))
	}

	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
}

func TestQuickReadsRaiseContactImportance(t *testing.T) {
	st := store.NewMemoryStore()
	l := newLearner(st, ai.Disabled{})
	ctx := context.Background()

	received := learnNow.Add(-2 * time.Hour)
	fast := &store.Message{UserID: "u1", Platform: "email", FromContactID: "c-fast", Body: "x", ReceivedAt: received}
	slow := &store.Message{UserID: "u1", Platform: "email", FromContactID: "c-slow", Body: "x", ReceivedAt: received}
	require.NoError(t, st.CreateMessage(ctx, fast))
	require.NoError(t, st.CreateMessage(ctx, slow))

	require.NoError(t, st.AppendInteraction(ctx, &store.InteractionEvent{
		UserID: "u1", EventType: store.EventMessageRead, MessageID: fast.ID,
		Timestamp: received.Add(2 * time.Minute),
	}))
	require.NoError(t, st.AppendInteraction(ctx, &store.InteractionEvent{
		UserID: "u1", EventType: store.EventMessageRead, MessageID: slow.ID,
		Timestamp: received.Add(90 * time.Minute),
	}))
	pad(t, st, "u1", 10)

	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Committed, outcome)

	ci, err := st.GetContactImportance(ctx, "u1", "c-fast")
	require.NoError(t, err)
	assert.InDelta(t, 5.02, ci.ImportanceScore, 1e-9, "quick read adds 0.2 scaled by the learning rate")

	_, err = st.GetContactImportance(ctx, "u1", "c-slow")
	assert.ErrorIs(t, err, store.ErrNotFound, "slow reads teach nothing")
}

func TestReplyVolumeIsCapped(t *testing.T) {
	st := store.NewMemoryStore()
	l := newLearner(st, ai.Disabled{})
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, st.AppendInteraction(ctx, &store.InteractionEvent{
			UserID: "u1", EventType: store.EventMessageReplied, ContactID: "c1",
			Timestamp: learnNow.Add(-time.Hour),
		}))
	}

	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Committed, outcome)

	ci, err := st.GetContactImportance(ctx, "u1", "c1")
	require.NoError(t, err)
	// 15 replies would be +1.5, the cap holds it to +1.0, scaled by rate 0.1.
	assert.InDelta(t, 5.1, ci.ImportanceScore, 1e-9)
}

func TestOverrideReplayNudgesWeights(t *testing.T) {
	st := store.NewMemoryStore()
	l := newLearner(st, ai.Disabled{})
	ctx := context.Background()

	msg := &store.Message{
		UserID: "u1", Platform: "slack", Body: "standup planning notes",
		ReceivedAt: learnNow.Add(-time.Hour),
	}
	require.NoError(t, st.CreateMessage(ctx, msg))
	require.NoError(t, st.AppendInteraction(ctx, &store.InteractionEvent{
		UserID: "u1", EventType: store.EventPriorityIncreased, MessageID: msg.ID,
		Timestamp: learnNow.Add(-time.Hour),
	}))
	pad(t, st, "u1", 10)

	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Committed, outcome)

	p, err := st.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, p.KeywordWeights["planning"], 1e-9)
	assert.InDelta(t, 0.55, p.PlatformWeights["slack"], 1e-9)
}

func TestDiscoveryRunsOnlyAtVolume(t *testing.T) {
	ctx := context.Background()

	stub := &stubAnalyzer{enabled: true}
	st := store.NewMemoryStore()
	l := newLearner(st, stub)
	pad(t, st, "u1", 49)
	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Committed, outcome)
	assert.Empty(t, stub.digests, "below fifty samples no discovery call is made")

	pad(t, st, "u1", 1)
	_, err = l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stub.digests, 1)
	assert.Equal(t, 50, stub.digests[0].TotalEvents)
}

func TestDiscoveryOverwritesWeights(t *testing.T) {
	ctx := context.Background()
	stub := &stubAnalyzer{
		enabled: true,
		weights: &ai.PatternWeights{
			SenderWeights:   map[string]float64{"boss@co": 0.95},
			KeywordWeights:  map[string]float64{"launch": 0.9},
			PlatformWeights: map[string]float64{"slack": 0.8},
			Patterns:        []string{"responds to slack fastest"},
		},
	}
	st := store.NewMemoryStore()
	l := newLearner(st, stub)

	require.NoError(t, st.AdjustPreferenceWeights(ctx, "u1",
		map[string]float64{"stale": 0.3}, nil))
	pad(t, st, "u1", 50)

	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Committed, outcome)

	p, err := st.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	_, hasStale := p.KeywordWeights["stale"]
	assert.False(t, hasStale, "discovery replaces the maps wholesale")
	assert.InDelta(t, 0.9, p.KeywordWeights["launch"], 1e-9)
	assert.Equal(t, []string{"responds to slack fastest"}, p.Patterns)
	assert.Equal(t, 50, p.SamplesAnalyzed)
	assert.Equal(t, learnNow, p.LastLearningRun)
}

// Discovery keys sender weights by contact id; a weight written for a
// contact must shift the score of that contact's next message.
func TestDiscoveredSenderWeightsReachScoring(t *testing.T) {
	ctx := context.Background()
	stub := &stubAnalyzer{
		enabled: true,
		weights: &ai.PatternWeights{
			SenderWeights: map[string]float64{"c-boss": 1.0},
		},
	}
	st := store.NewMemoryStore()
	l := newLearner(st, stub)
	pad(t, st, "u1", 50)

	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Committed, outcome)

	prefs, err := st.GetPreferences(ctx, "u1")
	require.NoError(t, err)

	incoming := &store.Message{
		UserID:        "u1",
		Platform:      "email",
		From:          "boss@example.com",
		FromContactID: "c-boss",
		Body:          "thoughts on the draft",
	}
	r := scoring.ScoreAt(learnNow, incoming, prefs, nil)
	assert.Equal(t, 55, r.Priority, "sender weight fires through the contact id")
}

// Learned weights must change how the scorer ranks subsequent messages.
func TestLearningShiftsScoring(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newLearner(st, ai.Disabled{})

	msg := &store.Message{
		UserID: "u1", Platform: "slack", Body: "deployment rollout checklist",
		ReceivedAt: learnNow.Add(-time.Hour),
	}
	require.NoError(t, st.CreateMessage(ctx, msg))
	for i := 0; i < 12; i++ {
		require.NoError(t, st.AppendInteraction(ctx, &store.InteractionEvent{
			UserID: "u1", EventType: store.EventPriorityIncreased, MessageID: msg.ID,
			Timestamp: learnNow.Add(-time.Hour),
		}))
	}

	incoming := &store.Message{
		UserID: "u1", Platform: "slack", Body: "next deployment rollout window",
		ReceivedAt: learnNow.Add(-48 * time.Hour),
	}
	before := scoring.ScoreAt(learnNow, incoming, nil, nil)

	outcome, err := l.Run(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Committed, outcome)

	prefs, err := st.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	after := scoring.ScoreAt(learnNow, incoming, prefs, nil)
	assert.Greater(t, after.Priority, before.Priority)
}

func TestRunAllCoversEveryUser(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newLearner(st, ai.Disabled{})

	pad(t, st, "active", 20)
	pad(t, st, "quiet", 2)

	outcomes, err := l.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Committed, outcomes["active"])
	assert.Equal(t, Skipped, outcomes["quiet"])
}
