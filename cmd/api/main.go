package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agaseke/agaseke-backend/api/routes"
	"github.com/agaseke/agaseke-backend/internal/auth"
	"github.com/agaseke/agaseke-backend/internal/delivery"
	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/pickup"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/auth/session"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/migrate"
	"github.com/agaseke/agaseke-backend/pkg/pubsub"
	"github.com/agaseke/agaseke-backend/pkg/qrpayload"
	"github.com/agaseke/agaseke-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	protocolMetrics := metrics.NewProtocolMetrics(registry)

	channel, closeChannel, err := deliveryChannel(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery channel", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeChannel(); err != nil {
			logg.Error(context.Background(), "error closing delivery channel", err)
		}
	}()

	userRepo := users.NewRepository(dbClient.DB())
	verifier, err := users.NewVerifier(userRepo, cfg.Credentials.Timeout)
	if err != nil {
		logg.Error(context.Background(), "failed to create credential verifier", err)
		os.Exit(1)
	}

	otpService, err := otp.NewService(otp.ServiceParams{
		Repo:            otp.NewRepository(dbClient.DB()),
		DB:              dbClient,
		Channel:         channel,
		Config:          cfg.OTP,
		DeliveryTimeout: cfg.Delivery.Timeout,
		Logger:          logg,
		Metrics:         protocolMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create otp service", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Verifier:       verifier,
		UserRepo:       userRepo,
		OTP:            otpService,
		SessionManager: sessionManager,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}
	adminRegisterService, err := auth.NewAdminRegisterService(auth.AdminRegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create admin register service", err)
		os.Exit(1)
	}

	purchaseRepo := purchases.NewRepository(dbClient.DB())
	purchaseService, err := purchases.NewService(purchases.ServiceParams{
		Repo:       purchaseRepo,
		DB:         dbClient,
		Inventory:  purchases.NewInventoryRestorer(),
		Settlement: cfg.Settlement,
		Logger:     logg,
		Metrics:    protocolMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase service", err)
		os.Exit(1)
	}

	calculator, err := settlement.NewCalculator(cfg.Settlement)
	if err != nil {
		logg.Error(context.Background(), "invalid settlement policy", err)
		os.Exit(1)
	}
	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Store:      purchaseRepo,
		Calculator: calculator,
		Logger:     logg,
		Metrics:    protocolMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	qrCodec, err := qrpayload.NewCodec(cfg.QR)
	if err != nil {
		logg.Error(context.Background(), "failed to create qr codec", err)
		os.Exit(1)
	}

	attempts, err := pickup.NewRedisAttemptStore(redisClient, cfg.Pickup.AttemptTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create pickup attempt store", err)
		os.Exit(1)
	}
	pickupService, err := pickup.NewService(pickup.ServiceParams{
		Codec:      qrCodec,
		Users:      userRepo,
		Verifier:   verifier,
		OTP:        otpService,
		Purchases:  purchaseService,
		Settlement: settlementService,
		Attempts:   attempts,
		Config:     cfg.Pickup,
		Logger:     logg,
		Metrics:    protocolMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pickup service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"channel":  cfg.Delivery.Channel,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			authService,
			registerService,
			adminRegisterService,
			purchaseService,
			qrCodec,
			pickupService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

// deliveryChannel selects where verification codes are sent.
func deliveryChannel(ctx context.Context, cfg *config.Config, logg *logger.Logger) (delivery.Channel, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Delivery.Channel {
	case config.DeliveryChannelPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, noop, err
		}
		channel, err := delivery.NewPubSubChannel(client.OTPDeliveryPublisher(), cfg.Delivery.Timeout)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return channel, client.Close, nil
	default:
		return delivery.NewLogChannel(logg, cfg.App.IsDev()), noop, nil
	}
}
