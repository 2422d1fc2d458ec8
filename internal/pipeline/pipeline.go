// Package pipeline stages inbound messages through three tiers: instant
// persistence, instant priority scoring, and deferred AI analysis jobs.
// A caller gets its response after tier 2; everything slower runs behind
// the scheduler.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inboxtriage/internal/ai"
	"github.com/inboxtriage/internal/scheduler"
	"github.com/inboxtriage/internal/scoring"
	"github.com/inboxtriage/internal/store"
)

const (
	batchChunkSize        = 10
	defaultGoalSampleRate = 0.10
)

// NewMessage is the ingestion input from a source adapter.
type NewMessage struct {
	UserID        string    `json:"user_id"`
	Platform      string    `json:"platform"`
	FromContactID string    `json:"from_contact_id,omitempty"`
	From          string    `json:"from,omitempty"`
	FromName      string    `json:"from_name,omitempty"`
	ExternalID    string    `json:"external_id,omitempty"`
	ThreadID      string    `json:"thread_id,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Body          string    `json:"body"`
	ReceivedAt    time.Time `json:"received_at,omitempty"`
}

// ProcessedMessage is what the caller gets back once the instant tiers ran.
type ProcessedMessage struct {
	ID         string   `json:"id"`
	Priority   int      `json:"priority"`
	Confidence float64  `json:"confidence"`
	Factors    []string `json:"factors,omitempty"`
	Tier       int      `json:"tier"`
}

// BatchResult pairs one batch entry with its outcome.
type BatchResult struct {
	Index   int               `json:"index"`
	Message *ProcessedMessage `json:"message,omitempty"`
	Err     error             `json:"-"`
}

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	GoalSampleRate float64
	// Rand drives goal-extraction sampling. Tests pass a seeded source;
	// nil means a time-seeded one.
	Rand *rand.Rand
}

// Pipeline wires the store, scorer, scheduler and analyzer together.
type Pipeline struct {
	store store.Store
	sched *scheduler.Scheduler
	ai    ai.Analyzer

	goalSampleRate float64
	rngMu          sync.Mutex
	rng            *rand.Rand
}

func New(st store.Store, sched *scheduler.Scheduler, analyzer ai.Analyzer, opts Options) *Pipeline {
	if opts.GoalSampleRate <= 0 {
		opts.GoalSampleRate = defaultGoalSampleRate
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	p := &Pipeline{
		store:          st,
		sched:          sched,
		ai:             analyzer,
		goalSampleRate: opts.GoalSampleRate,
		rng:            opts.Rand,
	}
	p.registerHandlers()
	return p
}

// Ingest runs the two instant tiers and enqueues the deferred third.
// Only tier 1 can fail the call; scoring and enqueueing degrade instead.
func (p *Pipeline) Ingest(ctx context.Context, in NewMessage) (*ProcessedMessage, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("message requires a user id")
	}
	if strings.TrimSpace(in.Body) == "" && strings.TrimSpace(in.Subject) == "" {
		return nil, fmt.Errorf("message requires a subject or body")
	}

	// Tier 1: persist immediately at neutral priority.
	msg := &store.Message{
		UserID:        in.UserID,
		Platform:      in.Platform,
		FromContactID: in.FromContactID,
		From:          in.From,
		FromName:      in.FromName,
		ExternalID:    in.ExternalID,
		ThreadID:      in.ThreadID,
		Subject:       in.Subject,
		Body:          in.Body,
		Snippet:       snippet(in.Body),
		Priority:      50,
		ReceivedAt:    in.ReceivedAt,
	}
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	// Tier 2: score and overwrite. Any failure leaves the neutral priority.
	result := p.score(ctx, msg)
	if result.Priority != msg.Priority {
		if err := p.store.UpdateMessagePriority(ctx, msg.ID, result.Priority); err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("keeping neutral priority, update failed")
			result = scoring.DefaultResult()
		}
	}

	// Tier 3: deferred analysis, fire and forget.
	p.enqueueAnalysis(msg)

	return &ProcessedMessage{
		ID:         msg.ID,
		Priority:   result.Priority,
		Confidence: result.Confidence,
		Factors:    result.Factors,
		Tier:       2,
	}, nil
}

func (p *Pipeline) score(ctx context.Context, msg *store.Message) scoring.Result {
	prefs, err := p.store.GetPreferences(ctx, msg.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("preference fetch failed, default priority")
		return scoring.DefaultResult()
	}
	var ci *store.ContactImportance
	if msg.FromContactID != "" {
		ci, err = p.store.GetContactImportance(ctx, msg.UserID, msg.FromContactID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("importance fetch failed, default priority")
			return scoring.DefaultResult()
		}
	}
	return scoring.Score(msg, prefs, ci)
}

func (p *Pipeline) enqueueAnalysis(msg *store.Message) {
	jobs := []string{
		scheduler.JobExtractTodos,
		scheduler.JobExtractTopics,
		scheduler.JobGenerateEmbedding,
	}
	if p.sampleGoals() {
		jobs = append(jobs, scheduler.JobExtractGoals)
	}
	for _, jt := range jobs {
		if _, err := p.sched.Enqueue(jt, msg.UserID, msg.ID); err != nil {
			log.Error().Err(err).Str("job_type", jt).Str("message_id", msg.ID).Msg("enqueue failed")
		}
	}
}

func (p *Pipeline) sampleGoals() bool {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64() < p.goalSampleRate
}

// IngestBatch processes messages in chunks of ten, each chunk concurrently
// with a barrier before the next. Per-message failures land in the result
// slice without failing the batch.
func (p *Pipeline) IngestBatch(ctx context.Context, msgs []NewMessage) []BatchResult {
	results := make([]BatchResult, len(msgs))
	for start := 0; start < len(msgs); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				pm, err := p.Ingest(ctx, msgs[i])
				results[i] = BatchResult{Index: i, Message: pm, Err: err}
			}(i)
		}
		wg.Wait()
	}
	return results
}

func snippet(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if len(body) > 140 {
		return body[:140]
	}
	return body
}
