// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "payouts/pkg/platform/strings"
)

// Config is the full service configuration.
type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	Kafka     Kafka
	Stripe    Stripe
	Directory Directory
	Payouts   Payouts
}

// Directory captures the events-platform collaborator that owns organizers
// and ticket revenue. An empty URL disables payout creation and migration.
type Directory struct {
	URL    string
	APIKey string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr       string
	AdminToken string
}

// Database captures the Postgres connection. An empty URL selects the
// in-memory store.
type Database struct {
	URL string
}

// Redis captures the stats-cache connection. An empty URL disables caching.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the audit relay target. Empty brokers disable the relay.
type Kafka struct {
	Brokers      []string
	AuditTopic   string
	PollInterval time.Duration
}

// Stripe captures the payment processor credentials.
type Stripe struct {
	APIKey  string
	BaseURL string
}

// Payouts captures domain tunables.
type Payouts struct {
	FeeRateBps       int32
	BatchConcurrency int
	StatsCacheTTL    time.Duration
}

// FromEnv builds the configuration from environment variables, applying
// development defaults where a value is absent.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:       envOr("PAYOUTS_ADDR", ":8080"),
			AdminToken: envOr("PAYOUTS_ADMIN_TOKEN", "dev-admin-token-change-in-production"),
		},
		Database: Database{
			URL: os.Getenv("PAYOUTS_DATABASE_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("PAYOUTS_REDIS_URL"),
			PoolSize:     envInt("PAYOUTS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("PAYOUTS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("PAYOUTS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("PAYOUTS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("PAYOUTS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:      pstrings.DedupeAndTrim(strings.Split(os.Getenv("PAYOUTS_KAFKA_BROKERS"), ",")),
			AuditTopic:   envOr("PAYOUTS_AUDIT_TOPIC", "payouts.audit"),
			PollInterval: envDuration("PAYOUTS_AUDIT_POLL_INTERVAL", 2*time.Second),
		},
		Stripe: Stripe{
			APIKey:  os.Getenv("PAYOUTS_STRIPE_API_KEY"),
			BaseURL: os.Getenv("PAYOUTS_STRIPE_BASE_URL"),
		},
		Directory: Directory{
			URL:    os.Getenv("PAYOUTS_DIRECTORY_URL"),
			APIKey: os.Getenv("PAYOUTS_DIRECTORY_API_KEY"),
		},
		Payouts: Payouts{
			FeeRateBps:       int32(envInt("PAYOUTS_FEE_RATE_BPS", 500)),
			BatchConcurrency: envInt("PAYOUTS_BATCH_CONCURRENCY", 4),
			StatsCacheTTL:    envDuration("PAYOUTS_STATS_CACHE_TTL", 10*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
