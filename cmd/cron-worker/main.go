package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agaseke/agaseke-backend/internal/cron"
	"github.com/agaseke/agaseke-backend/internal/delivery"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/migrate"
	"github.com/agaseke/agaseke-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	protocolMetrics := metrics.NewProtocolMetrics(registry)

	jobs, err := buildJobs(cfg, logg, dbClient, protocolMetrics)
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Tick:     cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if cfg.Cron.MetricsAddr != "" {
		stopMetrics := serveMetrics(ctx, logg, cfg.Cron.MetricsAddr, registry)
		defer stopMetrics()
	}

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// buildJobs wires the maintenance jobs and their cadences.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, protocolMetrics *metrics.ProtocolMetrics) (*cron.Registry, error) {
	otpService, err := otp.NewService(otp.ServiceParams{
		Repo:    otp.NewRepository(dbClient.DB()),
		DB:      dbClient,
		Channel: delivery.NewLogChannel(logg, false),
		Config:  cfg.OTP,
		Logger:  logg,
		Metrics: protocolMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("otp service: %w", err)
	}
	calculator, err := settlement.NewCalculator(cfg.Settlement)
	if err != nil {
		return nil, fmt.Errorf("settlement policy: %w", err)
	}
	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Store:      purchases.NewRepository(dbClient.DB()),
		Calculator: calculator,
		Logger:     logg,
		Metrics:    protocolMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}

	reconcile, err := cron.NewSettlementReconcileJob(cron.SettlementReconcileJobParams{
		Logger:     logg,
		Settlement: settlementService,
		BatchSize:  cfg.Cron.ReconcileBatch,
	})
	if err != nil {
		return nil, err
	}
	purge, err := cron.NewOTPPurgeJob(cron.OTPPurgeJobParams{Logger: logg, OTP: otpService})
	if err != nil {
		return nil, err
	}

	jobs := cron.NewRegistry()
	for _, entry := range []cron.Entry{
		{Job: reconcile, Every: cfg.Cron.ReconcileEvery},
		{Job: purge, Every: cfg.Cron.OTPPurgeEvery},
	} {
		if err := jobs.Add(entry.Job, entry.Every); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func serveMetrics(ctx context.Context, logg *logger.Logger, addr string, gatherer prometheus.Gatherer) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
