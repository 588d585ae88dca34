package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"genqueue/internal/bootstrap"
	"genqueue/internal/infra"
	"genqueue/internal/jobs"
	"genqueue/internal/realtime"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to initialize")
	}
	defer deps.Close()

	// One slot per worker so a burst of submissions wakes every idle worker.
	wake := make(chan struct{}, cfg.WorkerConcurrency)
	listener := realtime.NewListener(cfg.DatabaseURL, logger)
	listener.Handle(realtime.ChannelJobQueue, realtime.Signal(wake))

	reconciler := jobs.NewReconciler(deps.Jobs, deps.Processor, cfg.StaleAfter, logger)
	sweeper := jobs.NewExpirySweeper(deps.Media, deps.Buckets, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx) })
	for i := 1; i <= cfg.WorkerConcurrency; i++ {
		w := jobs.NewWorker(i, deps.Jobs, deps.Processor, cfg.ClaimLease, cfg.WorkerIdleWait, wake, logger)
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error { return jobs.Every(gctx, cfg.SweepInterval, "reconcile", logger, reconciler.RunOnce) })
	g.Go(func() error { return jobs.Every(gctx, cfg.SweepInterval, "expiry", logger, sweeper.RunOnce) })

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
