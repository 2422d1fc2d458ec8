// Package scheduler runs deferred analysis jobs on a bounded worker pool.
//
// Jobs live only in this process: they are never persisted, and a restart
// drops whatever is queued. That trade is deliberate. Every job is a
// re-derivable enrichment of durable data, so losing one costs a little
// analysis, not correctness.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Job types dispatched by the pipeline.
const (
	JobExtractTodos      = "extract_todos"
	JobExtractTopics     = "extract_topics"
	JobExtractGoals      = "extract_goals"
	JobGenerateEmbedding = "generate_embedding"
)

// Job is one unit of deferred work.
type Job struct {
	ID        string
	Type      string
	UserID    string
	MessageID string
	Retries   int
	CreatedAt time.Time
}

// Handler executes one job. A non-nil error triggers a retry until the
// retry budget is spent.
type Handler func(ctx context.Context, job Job) error

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Queued     int  `json:"queued"`
	Active     int  `json:"active"`
	Processing bool `json:"processing"`
	Dropped    int  `json:"dropped"`
}

// Options configures a Scheduler. Zero values fall back to defaults.
type Options struct {
	MaxConcurrent int
	MaxRetries    int
	JobTimeout    time.Duration
}

const (
	defaultMaxConcurrent = 3
	defaultMaxRetries    = 3
	defaultJobTimeout    = 30 * time.Second
)

// Scheduler is an in-memory job runner with bounded concurrency. Failed jobs
// go back to the head of the queue so retries run before fresh work.
type Scheduler struct {
	mu       sync.Mutex
	pending  []Job
	active   int
	dropped  int
	handlers map[string]Handler
	opts     Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		handlers: make(map[string]Handler),
		opts:     opts,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Register binds a handler to a job type. Must be called before Enqueue for
// that type; registration after startup is a programmer error.
func (s *Scheduler) Register(jobType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = h
}

// Enqueue adds a job and returns its id immediately; execution happens on
// the worker pool. Unknown job types are rejected here rather than left to
// spin through the retry loop.
func (s *Scheduler) Enqueue(jobType, userID, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[jobType]; !ok {
		return "", fmt.Errorf("no handler registered for job type %q", jobType)
	}
	job := Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		UserID:    userID,
		MessageID: messageID,
		CreatedAt: time.Now(),
	}
	s.pending = append(s.pending, job)
	s.dispatchLocked()
	return job.ID, nil
}

// dispatchLocked starts workers while capacity and work remain. Callers hold mu.
func (s *Scheduler) dispatchLocked() {
	for s.active < s.opts.MaxConcurrent && len(s.pending) > 0 {
		job := s.pending[0]
		s.pending = s.pending[1:]
		s.active++
		s.wg.Add(1)
		go s.run(job)
	}
}

func (s *Scheduler) run(job Job) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.JobTimeout)
	err := s.handlers[job.Type](ctx, job)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if err != nil {
		if job.Retries < s.opts.MaxRetries {
			job.Retries++
			log.Warn().
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Int("retry", job.Retries).
				Err(err).
				Msg("job failed, requeueing")
			// Head of the queue: retries run before fresh work.
			s.pending = append([]Job{job}, s.pending...)
		} else {
			s.dropped++
			log.Error().
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Str("message_id", job.MessageID).
				Int("retries", job.Retries).
				Err(err).
				Msg("job dropped after exhausting retries")
		}
	}
	s.dispatchLocked()
}

// Status returns a snapshot of queue depth and activity.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Queued:     len(s.pending),
		Active:     s.active,
		Processing: s.active > 0,
		Dropped:    s.dropped,
	}
}

// Drain blocks until the queue is empty and all workers are idle, or ctx is
// done. Used by tests and by shutdown to let in-flight analysis finish.
func (s *Scheduler) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := s.Status()
		if st.Queued == 0 && st.Active == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close cancels the context handed to running handlers. Queued jobs that
// have not started are discarded.
func (s *Scheduler) Close() {
	s.cancel()
}
