package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/api"
	"github.com/ayo6706/ramp-orchestrator/internal/api/handler"
	"github.com/ayo6706/ramp-orchestrator/internal/api/middleware"
	"github.com/ayo6706/ramp-orchestrator/internal/auth"
	"github.com/ayo6706/ramp-orchestrator/internal/config"
	"github.com/ayo6706/ramp-orchestrator/internal/db"
	"github.com/ayo6706/ramp-orchestrator/internal/events"
	"github.com/ayo6706/ramp-orchestrator/internal/executor"
	"github.com/ayo6706/ramp-orchestrator/internal/gateway"
	"github.com/ayo6706/ramp-orchestrator/internal/idempotency"
	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"github.com/ayo6706/ramp-orchestrator/internal/repository"
	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"github.com/ayo6706/ramp-orchestrator/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const hashGuardTTL = 24 * time.Hour

// orderStore is what both repositories offer.
type orderStore interface {
	service.OrderStore
	handler.OrderReader
}

// Run bootstraps the HTTP server, status poller and session sweeper, and
// blocks until parent is canceled or the server fails.
func Run(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Storage: Postgres when configured, otherwise process memory.
	var pool *pgxpool.Pool
	var orders orderStore
	var idemBackend idempotency.Backend
	if cfg.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		orders = repository.NewOrderRepository(pool)
		idemBackend = idempotency.NewPostgresBackend(pool)
	} else {
		logger.Warn("DATABASE_URL not set; orders and idempotency keys are kept in memory")
		orders = repository.NewMemoryOrderRepository()
		idemBackend = idempotency.NewMemoryBackend()
	}

	var redisCmd redis.Cmdable
	var guard service.HashGuard = idempotency.NewMemoryHashGuard()
	var challenges auth.ChallengeStore = auth.NewMemoryChallengeStore()
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		redisCmd = redisClient
		guard = idempotency.NewRedisHashGuard(redisClient, hashGuardTTL)
		challenges = auth.NewRedisChallengeStore(redisClient)
	}
	idemStore := idempotency.NewStore(redisCmd, idemBackend, cfg.IdempotencyTTL)

	var publisher service.EventPublisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer rabbit.Close()
		publisher = rabbit
		logger.Info("order events publishing to amqp", zap.String("exchange", cfg.EventsExchange))
	}

	var gw gateway.Gateway
	if cfg.RampAPIURL != "" {
		gw = gateway.NewClient(cfg.RampAPIURL, cfg.RampAPIKey, cfg.RampHTTPTimeout)
	} else {
		logger.Warn("RAMP_API_URL not set; using the simulated ramp backend")
		gw = gateway.NewMockGateway()
	}

	var exec executor.Executor
	var bridge *executor.WalletBridge
	switch cfg.Executor {
	case config.ExecutorEVM:
		evm, err := executor.NewEVMExecutor(ctx, executor.EVMConfig{RPCURL: cfg.EVMRPCURL, PrivateKeyHex: cfg.EVMPrivateKey})
		if err != nil {
			return fmt.Errorf("init evm executor: %w", err)
		}
		exec = evm
	default:
		bridge = executor.NewWalletBridge()
		exec = bridge
	}

	rates := service.NewFixedRateService(cfg.FXRateOverrides)
	poller := worker.NewStatusPoller(ctx, gw).WithPollInterval(cfg.StatusPollInterval)
	sessions := service.NewSessionManager(service.Deps{
		Gateway:  gw,
		Executor: exec,
		Gate:     service.NewKYCGate(service.NewKYCThresholdPolicy(rates, cfg.KYCBypassUSD, cfg.KYCBypassCNGNUSD), rates),
		Payloads: service.NewTransferPayloadBuilder(),
		Rates:    rates,
		Poller:   poller,
		Guard:    guard,
		Audit:    service.NewAuditService(orders, publisher),
	}, service.MachineConfig{
		SigningTimeout:  cfg.SigningTimeout,
		HashSubmitDelay: cfg.HashSubmitDelay,
	})

	sweeper := worker.NewSessionSweeper(sessions, cfg.SessionIdleTTL).WithSchedule(cfg.SessionSweepSchedule)
	stopSweeper, err := sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	logger.Info("session sweeper started",
		zap.String("schedule", cfg.SessionSweepSchedule),
		zap.Duration("idle_ttl", cfg.SessionIdleTTL),
		zap.Stringer("poller", poller),
	)

	router := api.NewRouter(api.Dependencies{
		Config:      cfg,
		Logger:      logger,
		DB:          pool,
		Redis:       redisCmd,
		Idempotency: idemStore,
		Wallets:     auth.NewWalletAuthenticator(challenges, cfg.JWTIssuer, 5*time.Minute),
		Sessions:    sessions,
		Orders:      orders,
		Webhooks:    service.NewWebhookService(sessions, cfg.WebhookHMACKey, cfg.WebhookSkipSignature),
		Bridge:      bridge,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RampHTTPTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("executor", cfg.Executor))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-parent.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping session sweeper")
	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	// Stops every status poll.
	cancel()
	logger.Info("shutdown complete", zap.Int("open_sessions", sessions.Len()))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
