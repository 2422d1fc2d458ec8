package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

// LearnCommand runs the preference learner once, for one user or for all.
func LearnCommand() *cli.Command {
	return &cli.Command{
		Name:  "learn",
		Usage: "Run a preference learning pass",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Learn for a single `USER` instead of everyone",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			a, err := bootstrap(ctx, c)
			if err != nil {
				return err
			}
			defer a.close()

			if userID := c.String("user"); userID != "" {
				outcome, err := a.learner.Run(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", userID, outcome)
				return nil
			}

			outcomes, err := a.learner.RunAll(ctx)
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				fmt.Println("no users with stored state")
				return nil
			}
			for userID, outcome := range outcomes {
				fmt.Printf("%s: %s\n", userID, outcome)
			}
			return nil
		},
	}
}
