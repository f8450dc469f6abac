package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the postgres URL used by gorm and the LISTEN/NOTIFY feed.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	Port          string
	AllowOrigins  string
	TZDefault     string
	ReqTimeoutSec int

	LogLevel    string
	LogFormat   string
	ServiceName string

	StoreDriver string // postgres | bolt
	BoltPath    string
	Database    DatabaseConfig

	FeedDriver string // local | redis | postgres
	Redis      RedisConfig

	OTPLength       int
	OTPTTL          time.Duration
	OTPMaxAttempts  int
	SessionTTL      time.Duration
	SMSGatewayURL   string
	SMSGatewayToken string

	DefaultCurrency string
}

// getenv returns the trimmed value of key, or def when unset or blank.
func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func atoi(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return n
}

// hours reads a possibly fractional number of hours.
func hours(key string, def float64) time.Duration {
	h, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil || h <= 0 {
		h = def
	}
	return time.Duration(h * float64(time.Hour))
}

func Load() *Config {
	return &Config{
		Port:          getenv("PORT", "8080"),
		AllowOrigins:  getenv("ALLOW_ORIGINS", "*"),
		TZDefault:     getenv("TZ_DEFAULT", "Asia/Karachi"),
		ReqTimeoutSec: atoi("REQUEST_TIMEOUT_SECONDS", 30),

		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),
		ServiceName: getenv("SERVICE_NAME", "khata-ledger"),

		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", "bolt")),
		BoltPath:    getenv("BOLT_PATH", "khata.db"),
		Database: DatabaseConfig{
			Host:     getenv("DB_HOST", "localhost"),
			Port:     getenv("DB_PORT", "5432"),
			User:     getenv("DB_USER", "postgres"),
			Password: getenv("DB_PASSWORD", "postgres"),
			Name:     getenv("DB_NAME", "khata"),
			SSLMode:  getenv("DB_SSLMODE", "disable"),
		},

		FeedDriver: strings.ToLower(getenv("FEED_DRIVER", "local")),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       atoi("REDIS_DB", 0),
		},

		OTPLength:       atoi("OTP_LENGTH", 6),
		OTPTTL:          time.Duration(atoi("OTP_TTL_SECONDS", 300)) * time.Second,
		OTPMaxAttempts:  atoi("OTP_MAX_ATTEMPTS", 5),
		SessionTTL:      hours("SESSION_TTL_HOURS", 720),
		SMSGatewayURL:   getenv("SMS_GATEWAY_URL", ""),
		SMSGatewayToken: getenv("SMS_GATEWAY_TOKEN", ""),

		DefaultCurrency: strings.ToUpper(getenv("DEFAULT_CURRENCY", "RS")),
	}
}

// Location resolves TZDefault, falling back to a fixed PKT offset.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.TZDefault); err == nil {
		return loc
	}
	return time.FixedZone("PKT", 5*3600)
}
