// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	Project string // prefixed into trust-anchor session names

	// Listen addresses per service
	BrokerAddr    string
	IngestAddr    string
	PromotionAddr string

	// Lease policy for issued grants
	MinLease     time.Duration
	MaxLease     time.Duration
	DefaultLease time.Duration

	// Grant signing (HS256). Router and broker must share this.
	GrantSecret string

	// Trust anchor (STS-like role assumption endpoint)
	TrustAnchorURL     string
	TrustAnchorTimeout time.Duration

	// Configuration-time artifacts
	TenantsFile string
	TiersFile   string

	// Delivery buffer thresholds
	FlushMaxRecords int
	FlushInterval   time.Duration
	FlushTimeout    time.Duration
	FlushMaxRetries int

	// Landing tier sink selection
	LandingDir      string // file sink root (dev default)
	LandingURL      string // http sink endpoint
	CompressBatches bool

	// Optional Rego module layered over the tier table
	PromotionRegoFile string

	// Redis & Postgres (optional; in-memory fallbacks when unset)
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                env("NEXUS_ENV", "dev"),
		Project:            env("NEXUS_PROJECT", "nexus"),
		BrokerAddr:         env("NEXUS_BROKER_ADDR", ":8080"),
		IngestAddr:         env("NEXUS_INGEST_ADDR", ":8082"),
		PromotionAddr:      env("NEXUS_PROMOTION_ADDR", ":8083"),
		MinLease:           envDur("NEXUS_MIN_LEASE_MIN", 15) * time.Minute,
		MaxLease:           envDur("NEXUS_MAX_LEASE_MIN", 60) * time.Minute,
		DefaultLease:       envDur("NEXUS_DEFAULT_LEASE_MIN", 30) * time.Minute,
		GrantSecret:        env("NEXUS_GRANT_SECRET", ""),
		TrustAnchorURL:     env("TRUST_ANCHOR_URL", ""),
		TrustAnchorTimeout: envDur("TRUST_ANCHOR_TIMEOUT_SEC", 10) * time.Second,
		TenantsFile:        env("NEXUS_TENANTS_FILE", ""),
		TiersFile:          env("NEXUS_TIERS_FILE", ""),
		FlushMaxRecords:    envInt("NEXUS_FLUSH_MAX_RECORDS", 500),
		FlushInterval:      envDur("NEXUS_FLUSH_INTERVAL_SEC", 30) * time.Second,
		FlushTimeout:       envDur("NEXUS_FLUSH_TIMEOUT_SEC", 10) * time.Second,
		FlushMaxRetries:    envInt("NEXUS_FLUSH_MAX_RETRIES", 5),
		LandingDir:         env("NEXUS_LANDING_DIR", ""),
		LandingURL:         env("NEXUS_LANDING_URL", ""),
		CompressBatches:    envBool("NEXUS_COMPRESS_BATCHES", false),
		PromotionRegoFile:  env("NEXUS_PROMOTION_REGO_FILE", ""),
		RedisURL:           env("REDIS_URL", ""),
		DatabaseURL:        env("DATABASE_URL", ""),
	}
	if cfg.GrantSecret == "" {
		log.Println("[WARN] NEXUS_GRANT_SECRET not set — using ephemeral dev signing key")
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — using in-memory tenant provider for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
