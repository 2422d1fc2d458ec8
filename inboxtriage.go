package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/inboxtriage/cmd"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "inboxtriage",
		Usage:   "Message triage service: instant priority scoring with background AI analysis",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.LearnCommand(),
			cmd.ConfigCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
