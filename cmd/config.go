package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/inboxtriage/internal/config"
)

// ConfigCommand manages the configuration file.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Where to write the `FILE`",
						Value: "inboxtriage.toml",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("path")
					if err := config.Init(path); err != nil {
						return err
					}
					fmt.Printf("wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "Load and validate the configuration",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					backend := "memory"
					if cfg.Database.DSN != "" {
						backend = "postgres"
					}
					analysis := "disabled"
					if cfg.AI.APIKey != "" {
						analysis = cfg.AI.Model
					}
					fmt.Printf("configuration ok: store=%s analysis=%s port=%d\n",
						backend, analysis, cfg.Server.Port)
					return nil
				},
			},
		},
	}
}
