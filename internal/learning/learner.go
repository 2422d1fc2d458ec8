// Package learning runs the batch preference learner: it replays a window
// of interaction events into weight and importance adjustments, and at
// sufficient volume asks the analysis service to rewrite the learned weight
// maps wholesale.
package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inboxtriage/internal/ai"
	"github.com/inboxtriage/internal/keywords"
	"github.com/inboxtriage/internal/store"
)

// Outcome of one learning run.
type Outcome string

const (
	Committed Outcome = "committed"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
)

const (
	windowDays        = 7
	maxSamples        = 500
	minSamples        = 10
	discoveryMin      = 50
	learningRate      = 0.1
	quickReadWindow   = 5 * time.Minute
	quickReadDelta    = 0.2
	replyDeltaPerMsg  = 0.1
	replyDeltaCap     = 1.0
	overrideStepDelta = 0.05
	overrideKeywords  = 10
)

// Learner is safe for concurrent use; runs for the same user serialize on a
// per-user mutex while distinct users proceed independently.
type Learner struct {
	store store.Store
	ai    ai.Analyzer
	now   func() time.Time

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func New(st store.Store, analyzer ai.Analyzer) *Learner {
	return &Learner{
		store: st,
		ai:    analyzer,
		now:   time.Now,
		users: make(map[string]*sync.Mutex),
	}
}

func (l *Learner) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.users[userID]
	if !ok {
		m = &sync.Mutex{}
		l.users[userID] = m
	}
	return m
}

// Run executes one learning pass for the user.
func (l *Learner) Run(ctx context.Context, userID string) (Outcome, error) {
	if userID == "" {
		return Failed, fmt.Errorf("learning requires a user id")
	}
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := l.now()
	since := now.Add(-windowDays * 24 * time.Hour)
	events, err := l.store.ListInteractionsSince(ctx, userID, since, maxSamples)
	if err != nil {
		return Failed, fmt.Errorf("loading interaction window: %w", err)
	}
	if len(events) < minSamples {
		log.Debug().Str("user_id", userID).Int("samples", len(events)).
			Msg("not enough interactions to learn from")
		return Skipped, nil
	}

	if err := l.applyReadPatterns(ctx, userID, events); err != nil {
		return Failed, err
	}
	if err := l.applyReplyPatterns(ctx, userID, events); err != nil {
		return Failed, err
	}
	if err := l.replayOverrides(ctx, userID, events); err != nil {
		return Failed, err
	}
	if len(events) >= discoveryMin {
		if err := l.discoverPatterns(ctx, userID, events); err != nil {
			return Failed, err
		}
	}

	if err := l.store.RecordLearningRun(ctx, userID, len(events), now); err != nil {
		return Failed, fmt.Errorf("recording learning run: %w", err)
	}
	log.Info().Str("user_id", userID).Int("samples", len(events)).Msg("learning run committed")
	return Committed, nil
}

// applyReadPatterns rewards contacts whose messages get opened fast. A read
// within five minutes of receipt counts as a quick read.
func (l *Learner) applyReadPatterns(ctx context.Context, userID string, events []*store.InteractionEvent) error {
	quickReads := make(map[string]int)
	for _, ev := range events {
		if ev.EventType != store.EventMessageRead || ev.MessageID == "" {
			continue
		}
		msg, err := l.store.GetMessage(ctx, ev.MessageID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading read message: %w", err)
		}
		if msg.FromContactID == "" {
			continue
		}
		if ev.Timestamp.Sub(msg.ReceivedAt) < quickReadWindow {
			quickReads[msg.FromContactID]++
		}
	}
	for contactID := range quickReads {
		err := l.store.AdjustContactImportance(ctx, userID, contactID, store.ImportanceAdjustment{
			Delta:       quickReadDelta * learningRate,
			CreateScore: 5 + quickReadDelta*learningRate,
		})
		if err != nil {
			return fmt.Errorf("applying read pattern: %w", err)
		}
	}
	return nil
}

// applyReplyPatterns scales contact importance with reply volume, capped so
// a chatty thread cannot dominate the window.
func (l *Learner) applyReplyPatterns(ctx context.Context, userID string, events []*store.InteractionEvent) error {
	replies := make(map[string]int)
	for _, ev := range events {
		if ev.EventType == store.EventMessageReplied && ev.ContactID != "" {
			replies[ev.ContactID]++
		}
	}
	for contactID, count := range replies {
		delta := replyDeltaPerMsg * float64(count)
		if delta > replyDeltaCap {
			delta = replyDeltaCap
		}
		err := l.store.AdjustContactImportance(ctx, userID, contactID, store.ImportanceAdjustment{
			Delta:       delta * learningRate,
			CreateScore: 5 + delta*learningRate,
		})
		if err != nil {
			return fmt.Errorf("applying reply pattern: %w", err)
		}
	}
	return nil
}

// replayOverrides converts each manual priority override into small weight
// deltas, gentler than the tracker's immediate nudge.
func (l *Learner) replayOverrides(ctx context.Context, userID string, events []*store.InteractionEvent) error {
	keywordDeltas := make(map[string]float64)
	platformDeltas := make(map[string]float64)
	for _, ev := range events {
		var direction float64
		switch ev.EventType {
		case store.EventPriorityIncreased:
			direction = 1
		case store.EventPriorityDecreased:
			direction = -1
		default:
			continue
		}
		if ev.MessageID == "" {
			continue
		}
		msg, err := l.store.GetMessage(ctx, ev.MessageID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading overridden message: %w", err)
		}
		for _, kw := range keywords.Extract(msg.Subject+" "+msg.Body, overrideKeywords) {
			keywordDeltas[kw] += direction * overrideStepDelta
		}
		if msg.Platform != "" {
			platformDeltas[msg.Platform] += direction * overrideStepDelta
		}
	}
	if len(keywordDeltas) == 0 && len(platformDeltas) == 0 {
		return nil
	}
	if err := l.store.AdjustPreferenceWeights(ctx, userID, keywordDeltas, platformDeltas); err != nil {
		return fmt.Errorf("replaying overrides: %w", err)
	}
	return nil
}

// discoverPatterns asks the analysis service to infer a full preference
// profile from the window. The learned maps replace the stored ones; the
// model sees the aggregate history, so blending would double-count.
func (l *Learner) discoverPatterns(ctx context.Context, userID string, events []*store.InteractionEvent) error {
	if !l.ai.Enabled() {
		return nil
	}
	digest := l.buildDigest(ctx, userID, events)
	weights, err := l.ai.DiscoverPatterns(ctx, digest)
	if err != nil {
		return fmt.Errorf("discovering patterns: %w", err)
	}
	if weights == nil {
		return nil
	}
	if err := l.store.ReplaceLearnedWeights(ctx, userID,
		weights.SenderWeights, weights.KeywordWeights, weights.PlatformWeights, weights.Patterns); err != nil {
		return fmt.Errorf("replacing learned weights: %w", err)
	}
	return nil
}

func (l *Learner) buildDigest(ctx context.Context, userID string, events []*store.InteractionEvent) ai.InteractionDigest {
	digest := ai.InteractionDigest{
		UserID:          userID,
		WindowDays:      windowDays,
		TotalEvents:     len(events),
		EventCounts:     make(map[string]int),
		RepliedContacts: make(map[string]int),
		ReadPlatforms:   make(map[string]int),
	}
	raised := make(map[string]bool)
	lowered := make(map[string]bool)
	for _, ev := range events {
		digest.EventCounts[string(ev.EventType)]++
		switch ev.EventType {
		case store.EventMessageReplied:
			if ev.ContactID != "" {
				digest.RepliedContacts[ev.ContactID]++
			}
		case store.EventMessageRead, store.EventPriorityIncreased, store.EventPriorityDecreased:
			if ev.MessageID == "" {
				continue
			}
			msg, err := l.store.GetMessage(ctx, ev.MessageID)
			if err != nil {
				continue
			}
			if ev.EventType == store.EventMessageRead {
				digest.ReadPlatforms[msg.Platform]++
				continue
			}
			target := raised
			if ev.EventType == store.EventPriorityDecreased {
				target = lowered
			}
			for _, kw := range keywords.Extract(msg.Subject+" "+msg.Body, overrideKeywords) {
				target[kw] = true
			}
		}
	}
	for kw := range raised {
		digest.RaisedKeywords = append(digest.RaisedKeywords, kw)
	}
	for kw := range lowered {
		digest.LoweredKeywords = append(digest.LoweredKeywords, kw)
	}
	return digest
}

// RunAll runs the learner for every known user, sequentially, isolating
// per-user failures.
func (l *Learner) RunAll(ctx context.Context) (map[string]Outcome, error) {
	users, err := l.store.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	outcomes := make(map[string]Outcome, len(users))
	for _, userID := range users {
		outcome, err := l.Run(ctx, userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("learning run failed")
		}
		outcomes[userID] = outcome
	}
	return outcomes, nil
}
