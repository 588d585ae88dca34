// Package bootstrap wires the job pipeline shared by the api, worker and ctl
// binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"genqueue/internal/adapter/repo"
	"genqueue/internal/infra"
	"genqueue/internal/jobs"
	"genqueue/internal/providers/replicate"
	"genqueue/internal/storage"
)

// Components holds the long-lived collaborators built from a Config.
type Components struct {
	Pool          *pgxpool.Pool
	Runner        *infra.SQLRunner
	Jobs          *repo.JobRepositoryPG
	Media         *repo.MediaRepositoryPG
	Notifications *repo.NotificationRepositoryPG
	Buckets       *storage.BucketSet
	Registry      *jobs.Registry
	Notifier      *jobs.Notifier
	Gatekeeper    *jobs.Gatekeeper
	Service       *jobs.Service
	Processor     *jobs.Processor
}

// Build connects to the database and object storage and assembles the
// admission service and processor. Callers must Close the result.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Components, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	buckets, err := storage.NewBucketSet(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("configure storage: %w", err)
	}

	runner := infra.NewSQLRunner(pool, logger)
	c := &Components{
		Pool:          pool,
		Runner:        runner,
		Jobs:          repo.NewJobRepository(runner),
		Media:         repo.NewMediaRepository(runner),
		Notifications: repo.NewNotificationRepository(runner),
		Buckets:       buckets,
		Registry: jobs.NewRegistry(jobs.Models{
			Image:    cfg.ModelImage,
			Video:    cfg.ModelVideo,
			Audio:    cfg.ModelAudio,
			LipSync:  cfg.ModelLipSync,
			FaceSwap: cfg.ModelFaceSwap,
		}),
		Gatekeeper: jobs.NewGatekeeper(cfg.MaxActiveJobs),
	}
	c.Notifier = jobs.NewNotifier(c.Notifications, logger)
	c.Service = jobs.NewService(repo.NewTransactor(runner), c.Jobs, c.Notifier, c.Gatekeeper, c.Registry, jobs.NewPGNudger(runner), logger)

	client, err := replicate.NewClient(replicate.Options{
		APIToken:      cfg.ReplicateAPIToken,
		BaseURL:       cfg.ReplicateBaseURL,
		RatePerSecond: cfg.ReplicateRateLimit,
		Logger:        &logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("configure provider: %w", err)
	}
	if !client.HasCredentials() {
		logger.Warn().Msg("REPLICATE_API_TOKEN not set; submitted jobs will fail authentication")
	}

	c.Processor = jobs.NewProcessor(jobs.ProcessorConfig{
		Jobs:         c.Jobs,
		Kinds:        c.Registry,
		Provider:     replicate.NewRunner(client, cfg.PollInterval),
		Stager:       jobs.NewStager(buckets.Temp, logger),
		Materializer: jobs.NewMaterializer(buckets, c.Media, jobs.NewHTTPDownloader(&http.Client{Timeout: 5 * time.Minute}, cfg.DownloadMaxBytes), logger),
		Notifier:     c.Notifier,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})
	return c, nil
}

// Close releases the database pool.
func (c *Components) Close() {
	if c != nil && c.Pool != nil {
		c.Pool.Close()
	}
}
