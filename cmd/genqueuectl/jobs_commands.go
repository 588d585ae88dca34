package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"genqueue/internal/bootstrap"
	"genqueue/internal/domain"
	"genqueue/internal/jobs"
	"genqueue/internal/providers/replicate"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive generation jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsProcessCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		userFlag   string
		statusFlag string
		limitFlag  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(userFlag)
			if userID == "" {
				return errors.New("--user is required")
			}
			filter := domain.JobFilter{UserID: userID, Limit: jobs.ClampLimit(limitFlag)}
			if statusFlag != "" {
				status, ok := domain.ParseJobStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				filter.Status = status
			}
			return ctx.withDeps(cmd.Context(), func(deps *bootstrap.Components) error {
				list, err := deps.Jobs.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobs(list, time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "owner user id")
	cmd.Flags().StringVar(&statusFlag, "status", "", "filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limitFlag, "limit", jobs.DefaultListLimit, "maximum rows to show")
	return cmd
}

func newJobsProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <job-id>",
		Short: "Run a job to completion in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDeps(cmd.Context(), func(deps *bootstrap.Components) error {
				_, err := deps.Jobs.ClaimByID(cmd.Context(), args[0], ctx.cfg.ClaimLease)
				if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
					if errors.Is(err, domain.ErrJobClaimed) {
						return fmt.Errorf("job %s is being processed elsewhere", args[0])
					}
					return err
				}
				err = deps.Processor.Process(cmd.Context(), args[0])
				if errors.Is(err, domain.ErrJobClaimed) {
					return fmt.Errorf("job %s is being processed elsewhere", args[0])
				}
				if err != nil {
					return fmt.Errorf("job %s: %s", args[0], replicate.UserMessage(err))
				}
				job, err := deps.Jobs.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s %s %s\n", job.ID, job.Status, job.OutputURL)
				return nil
			})
		},
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Finalize jobs stuck in processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDeps(cmd.Context(), func(deps *bootstrap.Components) error {
				n, err := jobs.NewReconciler(deps.Jobs, deps.Processor, ctx.cfg.StaleAfter, ctx.logger).RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "examined %d stale jobs\n", n)
				return nil
			})
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete media past its retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDeps(cmd.Context(), func(deps *bootstrap.Components) error {
				sweeper := jobs.NewExpirySweeper(deps.Media, deps.Buckets, ctx.logger)
				total := 0
				for {
					n, err := sweeper.RunOnce(cmd.Context())
					total += n
					if err != nil {
						return err
					}
					if n == 0 {
						break
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired items\n", total)
				return nil
			})
		},
	}
}
