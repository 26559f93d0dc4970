package config

import (
	"errors" // Error construction
	"fmt"    // DSN formatting
	"strings"
	"time" // Durations for TTLs and timeouts

	"github.com/joho/godotenv"             // For loading .env files
	"github.com/kelseyhightower/envconfig" // Struct-tag based environment parsing
)

// Config holds the application configuration
type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"` // Runtime environment
	AppPort   string `envconfig:"APP_PORT" default:"8080"`       // REST API port
	RelayPort string `envconfig:"RELAY_PORT" default:"8081"`     // WebSocket relay port

	DBUser     string `envconfig:"DB_USER" default:"root"`      // Database user
	DBPassword string `envconfig:"DB_PASSWORD"`                 // Database password
	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"` // Database host
	DBPort     string `envconfig:"DB_PORT" default:"3306"`      // Database port
	DBName     string `envconfig:"DB_NAME" default:"bell24h"`   // Database name

	JWTSecret string        `envconfig:"JWT_SECRET"`            // JWT secret key
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"` // JWT lifetime

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`            // Redis server address
	RedisPass     string `envconfig:"REDIS_PASS"`                                     // Redis password
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`                           // Redis database number
	NotifyChannel string `envconfig:"NOTIFY_CHANNEL" default:"bell24h:notifications"` // Pub/sub channel for the relay

	OTPTTL            time.Duration `envconfig:"OTP_TTL" default:"5m"`              // OTP lifetime
	OTPMaxAttempts    int           `envconfig:"OTP_MAX_ATTEMPTS" default:"5"`      // Wrong guesses before the OTP is burned
	OTPResendCooldown time.Duration `envconfig:"OTP_RESEND_COOLDOWN" default:"30s"` // Minimum gap between two OTPs
	OTPRateLimit      int           `envconfig:"OTP_RATE_LIMIT" default:"5"`        // OTP requests per minute per phone/IP

	RelayAuthTimeout  time.Duration `envconfig:"RELAY_AUTH_TIMEOUT" default:"30s"`   // Time allowed to authenticate a socket
	RelayPendingLimit int           `envconfig:"RELAY_PENDING_LIMIT" default:"1000"` // Bound of the offline notification queue

	RazorpayXBaseURL       string `envconfig:"RAZORPAYX_BASE_URL" default:"https://api.razorpay.com"` // Payout API base URL
	RazorpayXKeyID         string `envconfig:"RAZORPAYX_KEY_ID"`                                      // Payout API key id
	RazorpayXKeySecret     string `envconfig:"RAZORPAYX_KEY_SECRET"`                                  // Payout API key secret
	RazorpayXAccountNumber string `envconfig:"RAZORPAYX_ACCOUNT_NUMBER"`                              // Business account debited by payouts

	TrustedProxies []string `envconfig:"TRUSTED_PROXIES" default:"127.0.0.1"` // Proxies gin trusts for client IPs
}

// LoadConfig loads configuration from the environment, reading a .env file first if present
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("config: JWT_SECRET must be provided")
	}
	return &cfg, nil
}

// IsProd reports whether the application runs in production
func (c *Config) IsProd() bool {
	return c != nil && c.AppEnv == "production"
}

// MySQLDSN renders the Data Source Name used by the gorm MySQL driver
func (c *Config) MySQLDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4"
}

// PayoutsEnabled reports whether RazorpayX credentials are configured
func (c *Config) PayoutsEnabled() bool {
	return c.RazorpayXKeyID != "" && c.RazorpayXKeySecret != ""
}
