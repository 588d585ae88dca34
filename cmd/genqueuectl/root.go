package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"genqueue/internal/bootstrap"
	"genqueue/internal/infra"
)

// commandContext loads configuration once and builds the pipeline only for
// commands that need it.
type commandContext struct {
	cfg    *infra.Config
	logger zerolog.Logger
}

func (c *commandContext) config() (*infra.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.logger = infra.NewLogger(cfg.AppEnv, "ctl")
	return cfg, nil
}

func (c *commandContext) withDeps(ctx context.Context, fn func(*bootstrap.Components) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	deps, err := bootstrap.Build(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(deps)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "genqueuectl",
		Short:         "Operate the generation job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))
	rootCmd.AddCommand(newCleanupCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
