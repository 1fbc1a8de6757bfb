package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	HTTPPort string

	// Supervisor backend: "pm2" or "docker"
	Backend string

	// PM2
	PM2Bin    string
	PM2LogDir string

	// Tailing
	TailPollInterval time.Duration
	TailBacklogLines int

	// Optional integrations
	RedisURL      string
	MQTTBrokerURL string

	// Logging
	LogLevel  slog.Level
	LogFormat string // "json" or "text"

	// Tracing
	OTLPEndpoint string
	ServiceName  string

	// Features
	EnableMetrics bool
	EnableTracing bool
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "9615"),
		Backend:          getEnv("SUPERVISOR_BACKEND", "pm2"),
		PM2Bin:           getEnv("PM2_BIN", "pm2"),
		PM2LogDir:        getEnv("PM2_LOG_DIR", defaultLogDir()),
		TailPollInterval: getEnvDuration("TAIL_POLL_INTERVAL", 500*time.Millisecond),
		TailBacklogLines: getEnvInt("TAIL_BACKLOG_LINES", 100),
		RedisURL:         getEnv("REDIS_URL", ""),
		MQTTBrokerURL:    getEnv("MQTT_BROKER_URL", ""),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", ""),
		ServiceName:      getEnv("SERVICE_NAME", "pm2gate"),
		EnableMetrics:    getEnvBool("ENABLE_METRICS", true),
		EnableTracing:    getEnvBool("ENABLE_TRACING", false),
	}

	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	return cfg, nil
}

// defaultLogDir mirrors pm2's own convention of ~/.pm2/logs.
func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pm2/logs"
	}
	return home + "/.pm2/logs"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
