package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
type Config struct {
	Env  string // application environment (dev/test/prod)
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret          string
	AccessTTLMin       int // access token time-to-live in minutes
	RefreshTTLDays     int // refresh token time-to-live in days
	BcryptCostAdmin    int
	BcryptCostConsumer int

	OtpTTL       time.Duration // code lifetime
	OtpCooldown  time.Duration // min gap between sends per (phone, purpose)
	OtpRetention time.Duration // how long verified codes are kept
	// OtpFixedCode pins every generated code to a fixed value for test and
	// staging environments. Load refuses it when Env is "prod": a pinned
	// code in production would let anyone pass phone verification.
	OtpFixedCode string

	SMSProviderURL string // empty means log-only dispatch (dev)
	SMSAPIKey      string

	RabbitURL string
}

// Load reads configuration values from environment variables and returns a
// Config.
func Load() Config {
	cfg := Config{
		Env:                must("APP_ENV"),
		Port:               must("APP_PORT"),
		DBUser:             must("DB_USER"),
		DBPass:             os.Getenv("DB_PASS"),
		DBHost:             must("DB_HOST"),
		DBPort:             must("DB_PORT"),
		DBName:             must("DB_NAME"),
		JWTSecret:          must("JWT_SECRET"),
		AccessTTLMin:       mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays:     mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCostAdmin:    envInt("BCRYPT_COST_ADMIN", 12),
		BcryptCostConsumer: envInt("BCRYPT_COST_CONSUMER", 10),
		OtpTTL:             envDur("OTP_TTL", 10*time.Minute),
		OtpCooldown:        envDur("OTP_COOLDOWN", time.Minute),
		OtpRetention:       envDur("OTP_RETENTION", 24*time.Hour),
		OtpFixedCode:       os.Getenv("OTP_FIXED_CODE"),
		SMSProviderURL:     os.Getenv("SMS_PROVIDER_URL"),
		SMSAPIKey:          os.Getenv("SMS_API_KEY"),
		RabbitURL:          os.Getenv("RABBITMQ_URL"),
	}
	if cfg.Env == "prod" && cfg.OtpFixedCode != "" {
		log.Fatal("OTP_FIXED_CODE must not be set in prod")
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
