package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// CronRunner triggers RunAll on a cron schedule.
type CronRunner struct {
	cron    *cron.Cron
	learner *Learner
	timeout time.Duration
}

// NewCronRunner schedules learner.RunAll with the given cron expression,
// e.g. "0 3 * * *" for a nightly run.
func NewCronRunner(learner *Learner, spec string, timeout time.Duration) (*CronRunner, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	r := &CronRunner{
		cron:    cron.New(),
		learner: learner,
		timeout: timeout,
	}
	if _, err := r.cron.AddFunc(spec, r.runOnce); err != nil {
		return nil, fmt.Errorf("invalid learning schedule %q: %w", spec, err)
	}
	return r, nil
}

func (r *CronRunner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	outcomes, err := r.learner.RunAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduled learning run failed")
		return
	}
	committed := 0
	for _, o := range outcomes {
		if o == Committed {
			committed++
		}
	}
	log.Info().
		Int("users", len(outcomes)).
		Int("committed", committed).
		Dur("took", time.Since(start)).
		Msg("scheduled learning run finished")
}

func (r *CronRunner) Start() { r.cron.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (r *CronRunner) Stop() {
	<-r.cron.Stop().Done()
}
