// Package config loads runtime configuration from the environment.
// Priority: process env > .env file > defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string

	// Kafka delivery. Empty brokers disable both the broadcaster and
	// the notification producer; the core runs fully in-memory.
	KafkaBrokers      []string
	TradeTopic        string
	NotificationTopic string
	RelayInterval     time.Duration

	OutboxDir string

	// Engine tuning.
	DepthLevels int
	LockTimeout time.Duration

	LogLevel string
}

func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		TradeTopic:        "simex.trades",
		NotificationTopic: "simex.notifications",
		RelayInterval:     250 * time.Millisecond,
		OutboxDir:         "data/outbox",
		DepthLevels:       5,
		LockTimeout:       5 * time.Second,
		LogLevel:          "info",
	}
}

// Load reads the optional .env file at envPath (or the working
// directory when empty) and applies environment overrides.
func Load(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.ListenAddr = getString("SIMEX_LISTEN_ADDR", cfg.ListenAddr)
	cfg.KafkaBrokers = getList("SIMEX_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.TradeTopic = getString("SIMEX_TRADE_TOPIC", cfg.TradeTopic)
	cfg.NotificationTopic = getString("SIMEX_NOTIFICATION_TOPIC", cfg.NotificationTopic)
	cfg.RelayInterval = getDuration("SIMEX_RELAY_INTERVAL", cfg.RelayInterval)
	cfg.OutboxDir = getString("SIMEX_OUTBOX_DIR", cfg.OutboxDir)
	cfg.DepthLevels = getInt("SIMEX_DEPTH_LEVELS", cfg.DepthLevels)
	cfg.LockTimeout = getDuration("SIMEX_LOCK_TIMEOUT", cfg.LockTimeout)
	cfg.LogLevel = getString("SIMEX_LOG_LEVEL", cfg.LogLevel)
	return cfg
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
