package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/SAP-F-2025/proctoring-service/internal/models"
)

// CasdoorConfig holds the Casdoor identity provider settings.
type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

// FlagPolicyConfig carries the auto-flag thresholds. They are deployment
// configuration pending product clarification of the exact policy.
type FlagPolicyConfig struct {
	WarningSeverity models.ViolationSeverity
	WarningLimit    int
	FlagOnCritical  bool
}

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Kafka event publishing (empty brokers disables Kafka, mock publisher used)
	KafkaBrokers []string
	KafkaTopic   string

	// Monitoring signal ingest queue (redis list)
	ViolationQueueKey string

	// Expiry sweep cadence
	TickInterval time.Duration

	FlagPolicy FlagPolicyConfig
	Casdoor    CasdoorConfig
}

// LoadConfig reads configuration from the environment, loading a local .env
// file first when present.
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments inject env vars directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8083"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "proctoring-events"),

		ViolationQueueKey: getEnv("VIOLATION_QUEUE_KEY", "proctoring:violations:queue"),
		TickInterval:      getEnvDuration("TICK_INTERVAL", time.Second),

		FlagPolicy: FlagPolicyConfig{
			WarningSeverity: models.ViolationSeverity(getEnv("FLAG_WARNING_SEVERITY", string(models.SeverityMedium))),
			WarningLimit:    getEnvInt("FLAG_WARNING_LIMIT", 3),
			FlagOnCritical:  getEnvBool("FLAG_ON_CRITICAL", true),
		},

		Casdoor: CasdoorConfig{
			Endpoint:     getEnv("CASDOOR_ENDPOINT", ""),
			ClientID:     getEnv("CASDOOR_CLIENT_ID", ""),
			ClientSecret: getEnv("CASDOOR_CLIENT_SECRET", ""),
			Cert:         getEnv("CASDOOR_CERT", ""),
			Organization: getEnv("CASDOOR_ORGANIZATION", ""),
			Application:  getEnv("CASDOOR_APPLICATION", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.FlagPolicy.WarningSeverity.Valid() {
		return fmt.Errorf("FLAG_WARNING_SEVERITY %q is not a known severity", c.FlagPolicy.WarningSeverity)
	}
	if c.FlagPolicy.WarningLimit < 1 {
		return fmt.Errorf("FLAG_WARNING_LIMIT must be positive, got %d", c.FlagPolicy.WarningLimit)
	}
	if c.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("TICK_INTERVAL %s is too small", c.TickInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
