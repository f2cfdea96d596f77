package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	ExecutorBridge = "bridge"
	ExecutorEVM    = "evm"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort             string
	DatabaseURL          string
	RedisURL             string
	AMQPURL              string
	EventsExchange       string
	JWTSecret            string
	JWTIssuer            string
	JWTAudience          string
	RampAPIURL           string
	RampAPIKey           string
	RampHTTPTimeout      time.Duration
	StatusPollInterval   time.Duration
	SigningTimeout       time.Duration
	HashSubmitDelay      time.Duration
	KYCBypassUSD         decimal.Decimal
	KYCBypassCNGNUSD     decimal.Decimal
	Executor             string
	EVMRPCURL            string
	EVMPrivateKey        string
	SessionIdleTTL       time.Duration
	SessionSweepSchedule string
	PublicRateLimitRPS   int
	AuthRateLimitRPS     int
	CORSAllowedOrigins   []string
	LogLevel             string
	IdempotencyTTL       time.Duration
	WebhookHMACKey       string
	WebhookSkipSignature bool
	FXRateOverrides      map[string]decimal.Decimal
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "RAMP_PORT")
	bindEnv(v, "database_url", "DATABASE_URL", "RAMP_DATABASE_URL")
	bindEnv(v, "redis_url", "REDIS_URL", "RAMP_REDIS_URL")
	bindEnv(v, "amqp_url", "AMQP_URL", "RAMP_AMQP_URL")
	bindEnv(v, "events_exchange", "EVENTS_EXCHANGE", "RAMP_EVENTS_EXCHANGE")
	bindEnv(v, "jwt_secret", "JWT_SECRET", "RAMP_JWT_SECRET")
	bindEnv(v, "jwt_issuer", "JWT_ISSUER", "RAMP_JWT_ISSUER")
	bindEnv(v, "jwt_audience", "JWT_AUDIENCE", "RAMP_JWT_AUDIENCE")
	bindEnv(v, "ramp_api_url", "RAMP_API_URL")
	bindEnv(v, "ramp_api_key", "RAMP_API_KEY")
	bindEnv(v, "ramp_http_timeout", "RAMP_HTTP_TIMEOUT")
	bindEnv(v, "status_poll_interval", "STATUS_POLL_INTERVAL", "RAMP_STATUS_POLL_INTERVAL")
	bindEnv(v, "signing_timeout", "SIGNING_TIMEOUT", "RAMP_SIGNING_TIMEOUT")
	bindEnv(v, "hash_submit_delay", "HASH_SUBMIT_DELAY", "RAMP_HASH_SUBMIT_DELAY")
	bindEnv(v, "kyc_bypass_usd", "KYC_BYPASS_USD", "RAMP_KYC_BYPASS_USD")
	bindEnv(v, "kyc_bypass_cngn_usd", "KYC_BYPASS_CNGN_USD", "RAMP_KYC_BYPASS_CNGN_USD")
	bindEnv(v, "executor", "EXECUTOR", "RAMP_EXECUTOR")
	bindEnv(v, "evm_rpc_url", "EVM_RPC_URL", "RAMP_EVM_RPC_URL")
	bindEnv(v, "evm_private_key", "EVM_PRIVATE_KEY", "RAMP_EVM_PRIVATE_KEY")
	bindEnv(v, "session_idle_ttl", "SESSION_IDLE_TTL", "RAMP_SESSION_IDLE_TTL")
	bindEnv(v, "session_sweep_schedule", "SESSION_SWEEP_SCHEDULE", "RAMP_SESSION_SWEEP_SCHEDULE")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "RAMP_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "auth_rate_limit_rps", "AUTH_RATE_LIMIT_RPS", "RAMP_AUTH_RATE_LIMIT_RPS")
	bindEnv(v, "cors_allowed_origins", "CORS_ALLOWED_ORIGINS", "RAMP_CORS_ALLOWED_ORIGINS")
	bindEnv(v, "log_level", "LOG_LEVEL", "RAMP_LOG_LEVEL")
	bindEnv(v, "idempotency_ttl", "IDEMPOTENCY_TTL", "RAMP_IDEMPOTENCY_TTL")
	bindEnv(v, "webhook_hmac_key", "WEBHOOK_HMAC_KEY", "RAMP_WEBHOOK_HMAC_KEY")
	bindEnv(v, "webhook_skip_signature", "WEBHOOK_SKIP_SIGNATURE", "RAMP_WEBHOOK_SKIP_SIGNATURE")
	bindEnv(v, "fx_rate_overrides", "FX_RATE_OVERRIDES", "RAMP_FX_RATE_OVERRIDES")

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("events_exchange", "ramp.orders")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "ramp-orchestrator")
	v.SetDefault("jwt_audience", "ramp-web")
	v.SetDefault("ramp_api_url", "")
	v.SetDefault("ramp_api_key", "")
	v.SetDefault("ramp_http_timeout", "15s")
	v.SetDefault("status_poll_interval", "5s")
	v.SetDefault("signing_timeout", "120s")
	v.SetDefault("hash_submit_delay", "2s")
	v.SetDefault("kyc_bypass_usd", "100")
	v.SetDefault("kyc_bypass_cngn_usd", "250")
	v.SetDefault("executor", ExecutorBridge)
	v.SetDefault("evm_rpc_url", "")
	v.SetDefault("evm_private_key", "")
	v.SetDefault("session_idle_ttl", "30m")
	v.SetDefault("session_sweep_schedule", "@every 1m")
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("auth_rate_limit_rps", 100)
	v.SetDefault("cors_allowed_origins", "http://localhost:3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("webhook_hmac_key", "")
	v.SetDefault("webhook_skip_signature", false)
	v.SetDefault("fx_rate_overrides", "")

	durations := map[string]*time.Duration{}
	cfg := &Config{
		HTTPPort:             v.GetString("port"),
		DatabaseURL:          v.GetString("database_url"),
		RedisURL:             v.GetString("redis_url"),
		AMQPURL:              v.GetString("amqp_url"),
		EventsExchange:       v.GetString("events_exchange"),
		JWTSecret:            v.GetString("jwt_secret"),
		JWTIssuer:            v.GetString("jwt_issuer"),
		JWTAudience:          v.GetString("jwt_audience"),
		RampAPIURL:           strings.TrimSpace(v.GetString("ramp_api_url")),
		RampAPIKey:           v.GetString("ramp_api_key"),
		Executor:             strings.ToLower(strings.TrimSpace(v.GetString("executor"))),
		EVMRPCURL:            v.GetString("evm_rpc_url"),
		EVMPrivateKey:        v.GetString("evm_private_key"),
		SessionSweepSchedule: v.GetString("session_sweep_schedule"),
		PublicRateLimitRPS:   max(v.GetInt("public_rate_limit_rps"), 1),
		AuthRateLimitRPS:     max(v.GetInt("auth_rate_limit_rps"), 1),
		CORSAllowedOrigins:   splitList(v.GetString("cors_allowed_origins")),
		LogLevel:             v.GetString("log_level"),
		WebhookHMACKey:       v.GetString("webhook_hmac_key"),
		WebhookSkipSignature: v.GetBool("webhook_skip_signature"),
	}
	durations["RAMP_HTTP_TIMEOUT"] = &cfg.RampHTTPTimeout
	durations["STATUS_POLL_INTERVAL"] = &cfg.StatusPollInterval
	durations["SIGNING_TIMEOUT"] = &cfg.SigningTimeout
	durations["HASH_SUBMIT_DELAY"] = &cfg.HashSubmitDelay
	durations["SESSION_IDLE_TTL"] = &cfg.SessionIdleTTL
	durations["IDEMPOTENCY_TTL"] = &cfg.IdempotencyTTL

	for name, dst := range durations {
		d, err := time.ParseDuration(v.GetString(strings.ToLower(name)))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
		*dst = d
	}

	var err error
	if cfg.KYCBypassUSD, err = decimal.NewFromString(v.GetString("kyc_bypass_usd")); err != nil {
		return nil, fmt.Errorf("invalid KYC_BYPASS_USD: %w", err)
	}
	if cfg.KYCBypassCNGNUSD, err = decimal.NewFromString(v.GetString("kyc_bypass_cngn_usd")); err != nil {
		return nil, fmt.Errorf("invalid KYC_BYPASS_CNGN_USD: %w", err)
	}

	if cfg.FXRateOverrides, err = parseRates(v.GetString("fx_rate_overrides")); err != nil {
		return nil, fmt.Errorf("invalid FX_RATE_OVERRIDES: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if strings.TrimSpace(c.JWTIssuer) == "" {
		return fmt.Errorf("JWT_ISSUER is required")
	}
	if strings.TrimSpace(c.JWTAudience) == "" {
		return fmt.Errorf("JWT_AUDIENCE is required")
	}
	if !c.WebhookSkipSignature && c.WebhookHMACKey != "" && len(c.WebhookHMACKey) < 16 {
		return fmt.Errorf("WEBHOOK_HMAC_KEY must be at least 16 characters")
	}
	if c.KYCBypassUSD.IsNegative() || c.KYCBypassCNGNUSD.IsNegative() {
		return fmt.Errorf("KYC bypass thresholds must not be negative")
	}
	if _, err := cron.ParseStandard(c.SessionSweepSchedule); err != nil {
		return fmt.Errorf("invalid SESSION_SWEEP_SCHEDULE: %w", err)
	}
	switch c.Executor {
	case ExecutorBridge:
	case ExecutorEVM:
		if c.EVMRPCURL == "" || c.EVMPrivateKey == "" {
			return fmt.Errorf("EVM_RPC_URL and EVM_PRIVATE_KEY are required when EXECUTOR=evm")
		}
	default:
		return fmt.Errorf("unknown EXECUTOR %q", c.Executor)
	}
	return nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}

// parseRates reads "KES=129.5,NGN=1550" into units per USD.
func parseRates(raw string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, pair := range splitList(raw) {
		cur, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected CUR=rate, got %q", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", cur, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", cur)
		}
		rates[strings.ToUpper(strings.TrimSpace(cur))] = rate
	}
	return rates, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
