package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/inboxtriage/internal/api"
	"github.com/inboxtriage/internal/learning"
)

// APICommand starts the HTTP API and, when scheduled, the learning cron.
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the inboxtriage API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override the configured API port",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, c)
			if err != nil {
				return err
			}
			defer a.close()

			if c.IsSet("port") {
				a.cfg.Server.Port = c.Int("port")
			}

			if spec := a.cfg.Learning.Schedule; spec != "" {
				runner, err := learning.NewCronRunner(a.learner, spec, a.cfg.LearningTimeout())
				if err != nil {
					return err
				}
				runner.Start()
				defer runner.Stop()
				log.Info().Str("schedule", spec).Msg("learning cron scheduled")
			}

			server := api.NewServer(a.cfg.Server.Host, a.cfg.Server.Port,
				a.store, a.pipeline, a.tracker, a.sched, a.learner)
			return server.Start(ctx)
		},
	}
}
