package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. Built from environment
// variables so main stays lean.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
}

// PostgresConfig holds the database connection settings.
// An empty DSN means in-memory stores are used.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds the permission-cache backend settings.
// An empty URL means the in-memory cache is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds audit forwarding settings.
// Empty brokers disable the Kafka forwarder.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// SchedulerConfig controls the evaluation ticker.
type SchedulerConfig struct {
	Resolution time.Duration
}

// PermissionCacheTTL bounds how long a cached permission evaluation may
// be served. Mutations invalidate sooner; this is the hard ceiling.
var PermissionCacheTTL = 5 * time.Minute

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("HEIRLOOM_ADDR", ":8080"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("JWT_ISSUER", "heirloom"),
		JWTAudience:   envOr("JWT_AUDIENCE", "heirloom-admin"),
		Postgres: PostgresConfig{
			DSN:          os.Getenv("POSTGRES_DSN"),
			MaxOpenConns: envIntOr("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envIntOr("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "audit.events"),
		},
		Scheduler: SchedulerConfig{
			Resolution: time.Minute,
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
