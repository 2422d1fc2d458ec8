package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/inboxtriage/internal/ai"
	"github.com/inboxtriage/internal/config"
	"github.com/inboxtriage/internal/learning"
	"github.com/inboxtriage/internal/logging"
	"github.com/inboxtriage/internal/pipeline"
	"github.com/inboxtriage/internal/scheduler"
	"github.com/inboxtriage/internal/store"
	"github.com/inboxtriage/internal/tracking"
)

// app is the fully wired component graph shared by the commands.
type app struct {
	cfg      *config.Config
	store    store.Store
	sched    *scheduler.Scheduler
	pipeline *pipeline.Pipeline
	tracker  *tracking.Tracker
	learner  *learning.Learner
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// bootstrap builds the component graph from configuration. The store backend
// and the analyzer degrade based on what is configured: no DSN means the
// in-memory store, no API key means analysis is disabled.
func bootstrap(ctx context.Context, c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

	a := &app{cfg: cfg}

	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
	} else {
		log.Warn().Msg("no database configured, using in-memory store")
		a.store = store.NewMemoryStore()
	}

	var analyzer ai.Analyzer
	if cfg.AI.APIKey != "" {
		client, err := ai.NewClient(ai.Options{
			APIKey:         cfg.AI.APIKey,
			Model:          cfg.AI.Model,
			EmbeddingModel: cfg.AI.EmbeddingModel,
			BaseURL:        cfg.AI.BaseURL,
			Timeout:        cfg.AITimeout(),
			RequestsPerMin: cfg.AI.RequestsPerMin,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		analyzer = client
	} else {
		log.Warn().Msg("no ai key configured, running with analysis disabled")
		analyzer = ai.Disabled{}
	}

	a.sched = scheduler.New(scheduler.Options{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		MaxRetries:    cfg.Scheduler.MaxRetries,
		JobTimeout:    cfg.JobTimeout(),
	})
	a.closers = append(a.closers, a.sched.Close)

	a.pipeline = pipeline.New(a.store, a.sched, analyzer, pipeline.Options{
		GoalSampleRate: cfg.Pipeline.GoalSampleRate,
	})
	a.tracker = tracking.New(a.store)
	a.learner = learning.New(a.store, analyzer)
	return a, nil
}
