// Package config provides configuration loading and management for the application.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// PostgreSQL connection string
	DatabaseURL string

	// Ethereum JSON-RPC endpoint the adapters read from
	EthereumRPCURL string

	// Price provider API keys
	CoinGeckoAPIKey     string
	CoinMarketCapAPIKey string
	CryptoCompareAPIKey string

	// HS256 secret for API tokens
	JWTSecret string

	// Webhook URL risk alerts are posted to, empty disables alerting
	AlertWebhookURL string

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Per-client request rate
	RateLimitRPS   float64
	RateLimitBurst int

	// Risk score above which an alert fires
	AlertRiskThreshold float64

	// Timeouts and circuit breaker settings
	RequestTimeout    time.Duration
	CircuitResetDelay time.Duration

	// Rocket Pool network-average node bond ratio (see adapter docs)
	RocketNodeCollateralRatio float64
}

// Load creates a new Config from environment variables. A .env file in
// the working directory is merged in first without overriding the real
// environment.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Loaded configuration from .env file")
	}

	return Config{
		Port:                      GetEnvOrDefault("PORT", "8080"),
		DatabaseURL:               GetEnvOrDefault("DATABASE_URL", "postgres://localhost:5432/riskmonitor?sslmode=disable"),
		EthereumRPCURL:            GetEnvOrDefault("ETHEREUM_RPC_URL", "http://localhost:8545"),
		CoinGeckoAPIKey:           GetEnvOrDefault("COINGECKO_API_KEY", ""),
		CoinMarketCapAPIKey:       GetEnvOrDefault("COINMARKETCAP_API_KEY", ""),
		CryptoCompareAPIKey:       GetEnvOrDefault("CRYPTOCOMPARE_API_KEY", ""),
		JWTSecret:                 GetEnvOrDefault("JWT_SECRET", ""),
		AlertWebhookURL:           GetEnvOrDefault("ALERT_WEBHOOK_URL", ""),
		OtelEndpoint:              GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RateLimitRPS:              GetEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:            GetEnvAsInt("RATE_LIMIT_BURST", 10),
		AlertRiskThreshold:        GetEnvAsFloat("ALERT_RISK_THRESHOLD", 75),
		RequestTimeout:            GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		CircuitResetDelay:         GetEnvAsDuration("CIRCUIT_RESET_DELAY", time.Minute),
		RocketNodeCollateralRatio: GetEnvAsFloat("ROCKET_NODE_COLLATERAL_RATIO", 1.0),
	}
}

// Validate checks the settings that have no safe default.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return apperrors.Config("JWT_SECRET must be set")
	}
	if c.DatabaseURL == "" {
		return apperrors.Config("DATABASE_URL must be set")
	}
	if c.EthereumRPCURL == "" {
		return apperrors.Config("ETHEREUM_RPC_URL must be set")
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
