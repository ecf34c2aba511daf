package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	RedisURL     string
	NatsURL      string
	KafkaBrokers string

	// Settlement retry policy. Only TemporarilyUnavailable-class errors
	// are retried.
	RetryInitialInterval time.Duration
	RetryMaxAttempts     uint64

	// Reconciliation policy. A Pending record with an outstanding intent
	// older than MaxWait is forced to Failed.
	ReconcileInterval time.Duration
	ReconcileMaxWait  time.Duration

	// Minter fee rate as a decimal string, e.g. "0.002" for 0.2%.
	MinterFeeRate string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                 envOr("PORT", "8080"),
		RedisURL:             os.Getenv("REDIS_URL"),
		NatsURL:              os.Getenv("NATS_URL"),
		KafkaBrokers:         os.Getenv("KAFKA_BROKERS"),
		RetryInitialInterval: envDuration("RETRY_INITIAL_INTERVAL", 100*time.Millisecond),
		RetryMaxAttempts:     envUint("RETRY_MAX_ATTEMPTS", 5),
		ReconcileInterval:    envDuration("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileMaxWait:     envDuration("RECONCILE_MAX_WAIT", 24*time.Hour),
		MinterFeeRate:        envOr("MINTER_FEE_RATE", "0.002"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
