// Command flowsaga manages workflow definitions and executions: it validates and imports
// definitions, runs executions in-process, requests them from workers and shows their state.
package main

import (
	"context"
	"os"

	"github.com/dashcrm/flowsaga/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowsaga",
		Usage:                 "Manage workflow definitions and executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), "text")

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewImportCommand(),
			NewRunCommand(),
			NewRequestCommand(),
			NewStatusCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("flowsaga").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
