package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inboxtriage/internal/ai"
	"github.com/inboxtriage/internal/scheduler"
	"github.com/inboxtriage/internal/store"
)

// Deferred jobs are delivered at least once, so every handler tolerates
// reruns: todos dedupe by title, embeddings upsert, topics merge, and a
// vanished message ends the job instead of retrying it.

const (
	todoConfidenceFloor = 0.6
	topicImportanceMin  = 6
	topicWindow         = 10
	goalWindow          = 20
)

func (p *Pipeline) registerHandlers() {
	p.sched.Register(scheduler.JobExtractTodos, p.handleExtractTodos)
	p.sched.Register(scheduler.JobExtractTopics, p.handleExtractTopics)
	p.sched.Register(scheduler.JobExtractGoals, p.handleExtractGoals)
	p.sched.Register(scheduler.JobGenerateEmbedding, p.handleGenerateEmbedding)
}

// loadMessage fetches the job's message. A missing message means the job
// outlived its data; the bool tells the handler to finish without error.
func (p *Pipeline) loadMessage(ctx context.Context, job scheduler.Job) (*store.Message, bool, error) {
	msg, err := p.store.GetMessage(ctx, job.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug().Str("message_id", job.MessageID).Str("job_type", job.Type).Msg("message gone, skipping job")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

func (p *Pipeline) handleExtractTodos(ctx context.Context, job scheduler.Job) error {
	msg, ok, err := p.loadMessage(ctx, job)
	if !ok || err != nil {
		return err
	}

	var todos []ai.TodoCandidate
	if p.ai.Enabled() {
		todos, err = p.ai.ExtractTodos(ctx, ai.TodoRequest{
			UserID:    msg.UserID,
			MessageID: msg.ID,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Platform:  msg.Platform,
			Sender:    msg.FromName,
		})
		if err != nil {
			return err
		}
	} else {
		todos = ai.FallbackTodos(msg.Subject, msg.Body)
	}

	// A retried job re-runs the whole loop; todos already written for this
	// message are skipped rather than duplicated.
	existing, err := p.store.ListTodos(ctx, msg.UserID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, td := range existing {
		if td.ExtractedFrom == msg.ID {
			seen[strings.ToLower(td.Title)] = true
		}
	}

	saved := 0
	for _, td := range todos {
		if td.Confidence <= todoConfidenceFloor || seen[strings.ToLower(td.Title)] {
			continue
		}
		seen[strings.ToLower(td.Title)] = true
		item := &store.TodoItem{
			UserID:        msg.UserID,
			Title:         td.Title,
			Description:   td.Description,
			Status:        "pending",
			Priority:      td.Priority,
			DueDate:       td.DueDate,
			ExtractedFrom: msg.ID,
			Confidence:    td.Confidence,
		}
		if err := p.store.CreateTodo(ctx, item); err != nil {
			return err
		}
		saved++
	}
	if saved > 0 {
		log.Info().Str("message_id", msg.ID).Int("todos", saved).Msg("extracted todos")
	}
	return nil
}

func (p *Pipeline) handleExtractTopics(ctx context.Context, job scheduler.Job) error {
	msg, ok, err := p.loadMessage(ctx, job)
	if !ok || err != nil {
		return err
	}
	if msg.FromContactID == "" {
		return nil
	}
	recent, err := p.store.ListMessagesFromContact(ctx, msg.UserID, msg.FromContactID, topicWindow)
	if err != nil {
		return err
	}
	// One message is not a conversation yet.
	if len(recent) < 2 {
		return nil
	}

	samples := make([]ai.MessageSample, 0, len(recent))
	for _, m := range recent {
		samples = append(samples, ai.MessageSample{
			Subject:    m.Subject,
			Body:       m.Body,
			Platform:   m.Platform,
			Sender:     m.FromName,
			ReceivedAt: m.ReceivedAt,
		})
	}
	topic, err := p.ai.ExtractTopic(ctx, ai.TopicRequest{
		UserID:      msg.UserID,
		ContactName: msg.FromName,
		Messages:    samples,
	})
	if err != nil {
		return err
	}
	if topic == nil || topic.Importance < topicImportanceMin {
		return nil
	}

	existing, err := p.store.FindTopic(ctx, msg.UserID, topic.Name)
	switch {
	case err == nil:
		return p.store.TouchTopic(ctx, existing.ID, topic.Importance, time.Now())
	case errors.Is(err, store.ErrNotFound):
		return p.store.CreateTopic(ctx, &store.ConversationTopic{
			UserID:       msg.UserID,
			Name:         topic.Name,
			Description:  topic.Description,
			Category:     topic.Category,
			Importance:   topic.Importance,
			Keywords:     topic.Keywords,
			Sentiment:    topic.Sentiment,
			MessageCount: len(recent),
		})
	default:
		return err
	}
}

func (p *Pipeline) handleExtractGoals(ctx context.Context, job scheduler.Job) error {
	msg, ok, err := p.loadMessage(ctx, job)
	if !ok || err != nil {
		return err
	}
	recent, err := p.store.ListRecentMessages(ctx, msg.UserID, goalWindow)
	if err != nil {
		return err
	}
	samples := make([]ai.MessageSample, 0, len(recent))
	for _, m := range recent {
		samples = append(samples, ai.MessageSample{
			Subject:    m.Subject,
			Body:       m.Body,
			Platform:   m.Platform,
			Sender:     m.FromName,
			ReceivedAt: m.ReceivedAt,
		})
	}
	goals, err := p.ai.ExtractGoals(ctx, ai.GoalRequest{UserID: msg.UserID, Messages: samples})
	if err != nil {
		return err
	}
	for _, g := range goals {
		if err := p.store.CreateGoal(ctx, &store.Goal{
			UserID:     msg.UserID,
			Goal:       g.Goal,
			Category:   g.Category,
			Priority:   g.Priority,
			Confidence: g.Confidence,
			Keywords:   g.Keywords,
			Evidence:   g.Evidence,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) handleGenerateEmbedding(ctx context.Context, job scheduler.Job) error {
	msg, ok, err := p.loadMessage(ctx, job)
	if !ok || err != nil {
		return err
	}
	vec, err := p.ai.EmbedText(ctx, msg.Subject+"\n"+msg.Body)
	if err != nil {
		return err
	}
	if len(vec) == 0 {
		return nil
	}
	return p.store.UpsertEmbedding(ctx, &store.MessageEmbedding{
		MessageID: msg.ID,
		UserID:    msg.UserID,
		Vector:    vec,
	})
}
