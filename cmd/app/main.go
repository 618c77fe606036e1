// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"khm-membership/internal/application"
	"khm-membership/internal/config"
	"khm-membership/internal/infra/api"
	"khm-membership/internal/infra/logging"
	"khm-membership/internal/infra/metrics"
	red "khm-membership/internal/infra/redis"
	"khm-membership/internal/infra/sched"
	"khm-membership/internal/infra/web"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, insecure defaults)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logger.Info().Str("version", version).Str("commit", commit).Msg("starting khm-membership")

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer cleanup()

	if cfg.Security.JWTSecret == "" {
		logger.Warn().Msg("security.jwt_secret not set; account and admin API will refuse requests")
	}
	apiSrv := web.NewServer(web.Deps{
		Auth:           web.NewAuthManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL),
		Users:          c.Users,
		Limiter:        red.NewRateLimiter(c.Redis),
		LoginLimit:     cfg.Security.LoginLimit,
		LoginWindow:    cfg.Security.LoginWindow,
		Orders:         c.OrderUC,
		Subscriptions:  c.SubscriptionUC,
		PaymentMethods: c.PaymentUC,
		Email:          c.EmailUC,
	}, logger)

	router := api.NewRouter(api.RouterDeps{
		Webhooks: c.WebhookUC,
		Checks:   map[string]api.Pinger{"postgres": c.DB, "redis": c.Redis},
		Timeout:  cfg.HTTP.RequestTimeout,
		API:      apiSrv.Routes(),
	}, logger)
	server := api.NewServer(cfg.HTTP.Port, router, logger)

	// Detached so Stop can drain notices still buffered at shutdown.
	c.Pool.Start(context.Background())
	go c.ReportPoolStats(ctx, 15*time.Second)

	queue := sched.NewQueueWorker(cfg.Scheduler.QueueInterval, c.EmailUC, logger)
	go func() {
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("email queue worker stopped")
		}
	}()

	cron, err := sched.NewCron(sched.CronConfig{
		DailySpec:    cfg.Scheduler.DailyCron,
		CleanupSpec:  cfg.Scheduler.CleanupCron,
		CleanupAfter: cfg.Scheduler.CleanupAfter,
	}, c.Mutex, c.TasksUC, c.EmailUC, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scheduler cron expression")
	}
	cron.Start()

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cron.Stop()
	c.Pool.Stop()
	logger.Info().Msg("bye")
}
