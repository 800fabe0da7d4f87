// Package config loads application configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Binance credentials
	BinanceAPIKey    string
	BinanceAPISecret string
	UseTestnet       bool

	// Trading target
	Symbol    string
	Timeframe string

	// Surfaces
	ListenAddr  string
	MetricsAddr string

	// Infrastructure (empty disables the component)
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	WebhookURL    string

	// ParamsFile points at an optional YAML strategy parameter file.
	ParamsFile string

	// DashboardTOTPSecret guards the start/stop API endpoints when set.
	DashboardTOTPSecret string

	ReportDir string
	LogLevel  string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env file")
	}

	return &Config{
		BinanceAPIKey:    mustEnv("BINANCE_API_KEY"),
		BinanceAPISecret: mustEnv("BINANCE_API_SECRET"),
		UseTestnet:       parseBool(getEnv("USE_TESTNET", "true")),

		Symbol:    getEnv("SYMBOL", "BTC/USDT"),
		Timeframe: getEnv("TIMEFRAME", "1h"),

		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trades.db"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),

		ParamsFile: getEnv("PARAMS_FILE", ""),

		DashboardTOTPSecret: getEnv("DASHBOARD_TOTP_SECRET", ""),

		ReportDir: getEnv("REPORT_DIR", "reports"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}
}

// parseBool accepts the usual truthy spellings; anything else is false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
