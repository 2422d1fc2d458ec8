// Package tracking records user interactions and applies their immediate
// learning nudges. The append is the system of record; the nudges are
// best-effort and never fail a Track call.
package tracking

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/inboxtriage/internal/keywords"
	"github.com/inboxtriage/internal/store"
)

const (
	replyImportanceDelta    = 0.1
	replyCreateScore        = 6.0
	overrideKeywordDelta    = 0.1
	overridePlatformDelta   = 0.1
	overrideImportanceDelta = 0.3
	salientKeywordLimit     = 10
)

// Tracker applies interaction events to the stored learning state.
type Tracker struct {
	store store.Store
}

func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Track validates and appends the event, then applies per-type nudges.
// Validation failures are the caller's bug and are returned; nudge failures
// are logged and swallowed so one flaky side effect cannot lose the event.
func (t *Tracker) Track(ctx context.Context, ev store.InteractionEvent) error {
	if ev.UserID == "" {
		return fmt.Errorf("interaction requires a user id")
	}
	if !ev.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", ev.EventType)
	}
	if err := t.store.AppendInteraction(ctx, &ev); err != nil {
		return fmt.Errorf("appending interaction: %w", err)
	}

	switch ev.EventType {
	case store.EventMessageReplied:
		t.applyReply(ctx, ev)
	case store.EventMessageRead:
		t.applyRead(ctx, ev)
	case store.EventPriorityIncreased:
		t.applyOverride(ctx, ev, 1)
	case store.EventPriorityDecreased:
		t.applyOverride(ctx, ev, -1)
	}
	return nil
}

// A reply is the strongest implicit signal that a contact matters.
func (t *Tracker) applyReply(ctx context.Context, ev store.InteractionEvent) {
	if ev.ContactID == "" {
		return
	}
	err := t.store.AdjustContactImportance(ctx, ev.UserID, ev.ContactID, store.ImportanceAdjustment{
		Delta:            replyImportanceDelta,
		CountDelta:       1,
		TouchInteraction: true,
		CreateScore:      replyCreateScore,
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", ev.UserID).Str("contact_id", ev.ContactID).
			Msg("reply nudge failed")
	}
}

func (t *Tracker) applyRead(ctx context.Context, ev store.InteractionEvent) {
	if ev.MessageID == "" {
		return
	}
	if err := t.store.MarkMessageRead(ctx, ev.MessageID); err != nil {
		log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("read flag update failed")
	}
}

// A manual priority override is explicit feedback: nudge the salient
// keywords and platform of the message, and the contact behind it.
func (t *Tracker) applyOverride(ctx context.Context, ev store.InteractionEvent, direction float64) {
	if ev.MessageID == "" {
		return
	}
	msg, err := t.store.GetMessage(ctx, ev.MessageID)
	if err != nil {
		log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("override nudge skipped")
		return
	}

	keywordDeltas := make(map[string]float64)
	for _, kw := range keywords.Extract(msg.Subject+" "+msg.Body, salientKeywordLimit) {
		keywordDeltas[kw] = direction * overrideKeywordDelta
	}
	platformDeltas := map[string]float64{}
	if msg.Platform != "" {
		platformDeltas[msg.Platform] = direction * overridePlatformDelta
	}
	if err := t.store.AdjustPreferenceWeights(ctx, ev.UserID, keywordDeltas, platformDeltas); err != nil {
		log.Warn().Err(err).Str("user_id", ev.UserID).Msg("override weight nudge failed")
	}

	if msg.FromContactID != "" {
		err := t.store.AdjustContactImportance(ctx, ev.UserID, msg.FromContactID, store.ImportanceAdjustment{
			Delta:       direction * overrideImportanceDelta,
			CreateScore: 5 + direction*overrideImportanceDelta,
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", ev.UserID).Msg("override importance nudge failed")
		}
	}
}
