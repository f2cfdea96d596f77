package api

import (
	"net/http"

	"github.com/ayo6706/ramp-orchestrator/internal/api/handler"
	"github.com/ayo6706/ramp-orchestrator/internal/api/middleware"
	"github.com/ayo6706/ramp-orchestrator/internal/api/openapi"
	"github.com/ayo6706/ramp-orchestrator/internal/auth"
	"github.com/ayo6706/ramp-orchestrator/internal/config"
	"github.com/ayo6706/ramp-orchestrator/internal/executor"
	"github.com/ayo6706/ramp-orchestrator/internal/idempotency"
	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the HTTP layer is built from. DB,
// Redis, Idempotency and Bridge are optional.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *pgxpool.Pool
	Redis       redis.Cmdable
	Idempotency *idempotency.Store
	Wallets     *auth.WalletAuthenticator
	Sessions    *service.SessionManager
	Orders      handler.OrderReader
	Webhooks    *service.WebhookService
	// Bridge is set when payments are signed by the browser wallet.
	Bridge *executor.WalletBridge
}

type Router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Router{deps: deps}
}

func (api *Router) Routes() chi.Router {
	cfg := api.deps.Config
	logger := api.deps.Logger

	r := chi.NewRouter()
	r.Use(middleware.Observe(logger))
	r.Use(middleware.RecoverMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", middleware.TraceHeader},
		ExposedHeaders:   []string{middleware.TraceHeader, middleware.ReplayHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Handlers
	healthHandler := handler.NewHealthHandler(api.deps.DB, api.deps.Redis)
	authHandler := handler.NewAuthHandler(api.deps.Wallets)
	sessionHandler := handler.NewSessionHandler(api.deps.Sessions)
	orderHandler := handler.NewOrderHandler(api.deps.Orders)
	webhookHandler := handler.NewWebhookHandler(api.deps.Webhooks)

	// Operational
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", openapi.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/challenge", authHandler.Challenge)
		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/webhooks/transfer-status", webhookHandler.HandleTransferStatus)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(cfg.AuthRateLimitRPS))
		idempotent := middleware.IdempotencyMiddleware(api.deps.Idempotency, logger)

		// Sessions
		r.Post("/v1/sessions", sessionHandler.Create)
		r.Route("/v1/sessions/{id}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Delete("/", sessionHandler.Delete)
			r.Post("/wallet", sessionHandler.ConnectWallet)
			r.Delete("/wallet", sessionHandler.DisconnectWallet)
			r.Post("/kyc/refresh", sessionHandler.RefreshKYC)
			r.Put("/selection", sessionHandler.Select)
			r.Put("/account", sessionHandler.SetAccount)
			r.With(idempotent).Post("/confirm", sessionHandler.Confirm)
			r.With(idempotent).Post("/transfer", sessionHandler.CreateTransfer)
			r.Post("/cancel", sessionHandler.Cancel)

			if api.deps.Bridge != nil {
				paymentHandler := handler.NewPaymentHandler(api.deps.Sessions, api.deps.Bridge)
				r.Get("/payment", paymentHandler.Pending)
				r.Post("/payment/complete", paymentHandler.Complete)
				r.Post("/payment/fail", paymentHandler.Fail)
				r.Put("/chain", paymentHandler.ReportChain)
			}
		})

		// Order history
		r.Get("/v1/orders", orderHandler.List)
		r.Get("/v1/orders/{id}", orderHandler.Get)
		r.Get("/v1/orders/{id}/events", orderHandler.Events)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "route/not-found", "route not found")
	})

	return r
}
