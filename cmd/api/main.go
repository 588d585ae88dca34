package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genqueue/internal/bootstrap"
	"genqueue/internal/http/handlers"
	httpapi "genqueue/internal/http/httpapi"
	"genqueue/internal/infra"
	"genqueue/internal/infra/geoip"
	"genqueue/internal/realtime"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer deps.Close()

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	hub := realtime.NewHub(logger)
	listener := realtime.NewListener(cfg.DatabaseURL, logger)
	listener.Handle(realtime.ChannelJobEvents, hub.HandlePayload)
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("job event listener stopped")
		}
	}()

	app := &handlers.App{
		Jobs:          deps.Service,
		JobStore:      deps.Jobs,
		Processor:     deps.Processor,
		Media:         deps.Media,
		Buckets:       deps.Buckets,
		Notifications: deps.Notifications,
		Hub:           hub,
		InternalToken: cfg.InternalToken,
		ClaimLease:    cfg.ClaimLease,
		Logger:        logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		Lookup:          resolver.Lookup(),
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
