package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for one process invocation.
// It is built once in main and passed down explicitly; nothing below cmd/ reads
// the environment.
type Config struct {
	ServiceName string // e.g. "bank-scrapers"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.

	// Scraping engine sidecar
	EngineWSURL         string        // e.g. ws://localhost:7300/v1/sessions
	EngineHTTPURL       string        // e.g. http://localhost:7300
	EngineHTTPTimeout   time.Duration // per request on the two-factor endpoints
	EngineRetryMax      int
	EngineRatePerSec    int
	EngineRateBurst     int
	ShowBrowser         bool // headless unless SHOW_BROWSER=true
	CombineInstallments bool

	// Optional sinks; empty disables the sink.
	DatabaseURL     string
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	NATSURL         string
	OutboundSubject string
	AMQPURL         string
	AMQPExchange    string
	AMQPRoutingKey  string
	PushGatewayURL  string

	// Credentials for the sync job
	SecretsEnabled bool
	AWSRegion      string
	CacheTTL       time.Duration // TTL for secret cache
	CleanupFreq    time.Duration // frequency for cache cleanup goroutine

	SyncInterval   time.Duration // 0 runs a single pass
	SyncLookback   time.Duration // start date offset when no checkpoint exists
	HTTPListenAddr string        // health and metrics for the sync daemon; empty disables

	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName: GetEnv("SERVICE_NAME", "bank-scrapers"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),

		EngineWSURL:         GetEnv("ENGINE_WS_URL", "ws://localhost:7300/v1/sessions"),
		EngineHTTPURL:       GetEnv("ENGINE_HTTP_URL", "http://localhost:7300"),
		EngineHTTPTimeout:   GetEnvDuration("ENGINE_HTTP_TIMEOUT", 2*time.Minute),
		EngineRetryMax:      GetEnvInt("ENGINE_RETRY_MAX", 2),
		EngineRatePerSec:    GetEnvInt("ENGINE_RATE_PER_SEC", 1),
		EngineRateBurst:     GetEnvInt("ENGINE_RATE_BURST", 2),
		ShowBrowser:         GetEnvBool("SHOW_BROWSER", false),
		CombineInstallments: GetEnvBool("COMBINE_INSTALLMENTS", false),

		DatabaseURL:     GetEnv("DATABASE_URL", ""),
		RedisAddr:       GetEnv("REDIS_ADDR", ""),
		RedisDB:         GetEnvInt("REDIS_DB", 0),
		RedisPass:       GetEnv("REDIS_PASS", ""),
		NATSURL:         GetEnv("NATS_URL", ""),
		OutboundSubject: GetEnv("OUTBOUND_SUBJECT", "evt.bank.transactions.scraped.v1"),
		AMQPURL:         GetEnv("AMQP_URL", ""),
		AMQPExchange:    GetEnv("AMQP_EXCHANGE", ""),
		AMQPRoutingKey:  GetEnv("AMQP_ROUTING_KEY", "bank.transactions.scraped"),
		PushGatewayURL:  GetEnv("PUSHGATEWAY_URL", ""),

		SecretsEnabled: GetEnvBool("SECRETS_ENABLED", false),
		AWSRegion:      GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:       GetEnvDuration("CACHE_TTL", 24*time.Hour),
		CleanupFreq:    GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		SyncInterval:   GetEnvDuration("SYNC_INTERVAL", 0),
		SyncLookback:   GetEnvDuration("SYNC_LOOKBACK", 30*24*time.Hour),
		HTTPListenAddr: GetEnv("HTTP_LISTEN_ADDR", ""),

		PGMaxConns:          GetEnvInt("PG_MAX_CONNS", 4),
		PGMinConns:          GetEnvInt("PG_MIN_CONNS", 1),
		PGMaxConnLifetime:   GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
}
