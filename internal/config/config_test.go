package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/proctoring_test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Port != "8083" {
		t.Errorf("Port = %s, want 8083", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %s, want 1s", cfg.TickInterval)
	}
	if cfg.FlagPolicy.WarningLimit != 3 {
		t.Errorf("WarningLimit = %d, want 3", cfg.FlagPolicy.WarningLimit)
	}
	if !cfg.FlagPolicy.FlagOnCritical {
		t.Error("FlagOnCritical should default to true")
	}
}

func TestLoadConfig_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestLoadConfig_ParsesOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/proctoring_test")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("FLAG_WARNING_SEVERITY", "high")
	t.Setenv("FLAG_WARNING_LIMIT", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.FlagPolicy.WarningLimit != 5 {
		t.Errorf("WarningLimit = %d, want 5", cfg.FlagPolicy.WarningLimit)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestLoadConfig_RejectsBadPolicy(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/proctoring_test")
	t.Setenv("FLAG_WARNING_SEVERITY", "catastrophic")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for unknown severity")
	}
}
