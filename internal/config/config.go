package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	Billing BillingConfig
	Gateway GatewayConfig
	Metrics MetricsConfig
}

// BillingConfig carries the fee and payout policy knobs. Fee rates are in
// basis points so fee math stays in integer minor units.
type BillingConfig struct {
	PlatformFeeBps  int64
	GatewayFeeBps   int64
	GatewayFixedFee int64
	PayoutMinimum   int64
	TrialMinutes    int
	ConfirmRetryMax int
}

type GatewayConfig struct {
	Provider      string
	SecretKey     string
	WebhookSecret string
}

type MetricsConfig struct {
	Enabled          bool
	ExporterProtocol string
	ExporterEndpoint string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "stafflane"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "stafflane"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Billing: BillingConfig{
			PlatformFeeBps:  getenvInt64("BILLING_PLATFORM_FEE_BPS", 1500),
			GatewayFeeBps:   getenvInt64("BILLING_GATEWAY_FEE_BPS", 290),
			GatewayFixedFee: getenvInt64("BILLING_GATEWAY_FIXED_FEE", 30),
			PayoutMinimum:   getenvInt64("BILLING_PAYOUT_MINIMUM", 5000),
			TrialMinutes:    getenvInt("BILLING_TRIAL_MINUTES", 15),
			ConfirmRetryMax: getenvInt("BILLING_CONFIRM_RETRY_MAX", 3),
		},
		Gateway: GatewayConfig{
			Provider:      strings.ToLower(getenv("GATEWAY_PROVIDER", "stripe")),
			SecretKey:     strings.TrimSpace(getenv("GATEWAY_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", "")),
		},
		Metrics: MetricsConfig{
			Enabled:          getenvBool("METRICS_ENABLED", false),
			ExporterProtocol: strings.ToLower(getenv("METRICS_EXPORTER_PROTOCOL", "grpc")),
			ExporterEndpoint: strings.TrimSpace(getenv("METRICS_EXPORTER_ENDPOINT", "localhost:4317")),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingPolicyHolder),
)
