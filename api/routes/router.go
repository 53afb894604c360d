package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agaseke/agaseke-backend/api/controllers"
	"github.com/agaseke/agaseke-backend/api/middleware"
	"github.com/agaseke/agaseke-backend/internal/auth"
	"github.com/agaseke/agaseke-backend/internal/pickup"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/pkg/auth/session"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/qrpayload"
	"github.com/agaseke/agaseke-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionChecker session.AccessSessionChecker,
	metricsHandler http.Handler,
	authService auth.Service,
	registerService auth.RegisterService,
	adminRegisterService auth.AdminRegisterService,
	purchaseService purchases.Service,
	qrCodec *qrpayload.Codec,
	pickupService pickup.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.AccessLog(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	loginLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:        "login",
		Window:      cfg.AuthRateLimit.LoginWindow,
		PerIP:       cfg.AuthRateLimit.LoginIPLimit,
		PerIdentity: cfg.AuthRateLimit.LoginIdentityLimit,
	}, redisClient, logg)
	verifyLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "verify",
		Window: cfg.AuthRateLimit.VerifyWindow,
		PerIP:  cfg.AuthRateLimit.VerifyIPLimit,
	}, redisClient, logg)
	idempotentDay := middleware.Idempotent(redisClient, logg, middleware.IdempotencyDay)
	idempotentWeek := middleware.Idempotent(redisClient, logg, middleware.IdempotencyWeek)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(verifyLimit).Post("/login/verify", controllers.AuthVerifyLogin(authService, logg))
		r.With(verifyLimit).Post("/token/refresh", controllers.AuthRefresh(authService, logg))
		r.With(verifyLimit, idempotentDay).Post("/register", controllers.AuthRegister(registerService, logg))
		r.With(middleware.Auth(cfg.JWT, sessionChecker, logg)).Post("/logout", controllers.AuthLogout(authService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleBuyer))
			r.Get("/purchases", controllers.BuyerPurchases(purchaseService, logg))
			r.Get("/purchases/qr", controllers.BuyerPurchaseQR(purchaseService, qrCodec, logg))
		})

		r.With(middleware.RequireRole(logg, enums.RoleBuyer, enums.RoleAdmin), idempotentWeek).
			Post("/purchases/{orderId}/cancel", controllers.PurchaseCancel(purchaseService, logg))

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleVendor))
			r.With(idempotentDay).Post("/purchases/{orderId}/ready", controllers.VendorPurchaseReady(purchaseService, logg))
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAgent))
			r.With(idempotentDay).Post("/purchases/{orderId}/dispatch", controllers.AgentPurchaseDispatch(purchaseService, logg))

			r.Route("/pickup", func(r chi.Router) {
				r.Post("/resolve-qr", controllers.PickupResolveQR(pickupService, logg))
				r.Post("/verify-credentials", controllers.PickupVerifyCredentials(pickupService, logg))
				r.Post("/request-otp", controllers.PickupRequestOTP(pickupService, logg))
				r.With(verifyLimit).Post("/verify-otp", controllers.PickupVerifyOTP(pickupService, logg))
				r.With(idempotentWeek).Post("/complete", controllers.PickupComplete(pickupService, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.With(idempotentDay).Post("/users", controllers.AdminRegisterUser(adminRegisterService, logg))
		})
	})

	return r
}
