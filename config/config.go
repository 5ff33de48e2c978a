package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	GinMode    string
	CORSOrigin string

	DBDriver string
	DBDSN    string

	JWTSecret string
	LogLevel  string

	TxTimeout                time.Duration
	StaleWriteRetries        int
	DefaultTaxRate           float64
	DefaultServiceChargeRate float64
	TokenHashCost            int

	SSEHeartbeat     time.Duration
	SubscriberBuffer int
	GuestRatePerSec  float64
	GuestBurst       int

	Redis struct {
		Addr     string
		Password string
		DB       int
		Channel  string
	}
}

// Load reads envFile (if it exists) into the process environment and then
// builds the config from environment variables. Variables already set in the
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	cfg.Port = getEnv("PORT", "8080")
	cfg.GinMode = getEnv("GIN_MODE", "debug")
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", "")
	cfg.DBDriver = getEnv("DB_DRIVER", "sqlite")
	cfg.DBDSN = getEnv("DB_DSN", "floorops.db")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.TxTimeout = parseDuration(getEnv("TX_TIMEOUT", ""), 5*time.Second)
	cfg.StaleWriteRetries = parseInt(getEnv("STALE_WRITE_RETRIES", ""), 5)
	cfg.DefaultTaxRate = parseFloat(getEnv("DEFAULT_TAX_RATE", ""), 0.10)
	cfg.DefaultServiceChargeRate = parseFloat(getEnv("DEFAULT_SERVICE_CHARGE_RATE", ""), 0.05)
	cfg.TokenHashCost = parseInt(getEnv("TOKEN_HASH_COST", ""), 10)

	cfg.SSEHeartbeat = parseDuration(getEnv("SSE_HEARTBEAT", ""), 15*time.Second)
	cfg.SubscriberBuffer = parseInt(getEnv("SUBSCRIBER_BUFFER", ""), 32)
	cfg.GuestRatePerSec = parseFloat(getEnv("GUEST_RATE_PER_SEC", ""), 5)
	cfg.GuestBurst = parseInt(getEnv("GUEST_BURST", ""), 10)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", ""), 0)
	cfg.Redis.Channel = getEnv("REDIS_CHANNEL", "floorops:events")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DefaultTaxRate < 0 || c.DefaultServiceChargeRate < 0 {
		return errors.New("default rates cannot be negative")
	}
	if c.StaleWriteRetries < 1 {
		return errors.New("STALE_WRITE_RETRIES must be at least 1")
	}
	if c.SubscriberBuffer < 1 {
		return errors.New("SUBSCRIBER_BUFFER must be at least 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
