package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Session  SessionConfig
	Auth     AuthConfig
	Email    EmailConfig
	Admin    BootstrapConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectAttempts   int
	ConnectRetryDelay time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type SessionConfig struct {
	TTL             time.Duration
	CookieName      string
	CookieSecure    bool
	RedisURL        string // empty selects the in-memory store
	CleanupInterval time.Duration
}

type AuthConfig struct {
	LockoutThreshold         int
	LockoutDuration          time.Duration
	TwoFactorMaxAttempts     int
	TwoFactorLockoutDuration time.Duration
	TOTPIssuer               string
	TOTPSkew                 uint
	TOTPEncryptionKey        []byte
	EmailCaseInsensitive     bool
	TimingDelayBase          time.Duration
	TimingDelayRandom        time.Duration
}

// EmailConfig enables SES security notifications when FromAddress is set.
type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func (c EmailConfig) Enabled() bool {
	return c.FromAddress != ""
}

// BootstrapConfig names the main admin created on first start.
type BootstrapConfig struct {
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	key, err := decodeEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: loadDatabaseConfig(),
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			TTL:             getEnvAsDuration("SESSION_TTL", 8*time.Hour),
			CookieName:      getEnv("SESSION_COOKIE_NAME", "wazgo_session"),
			CookieSecure:    getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
			RedisURL:        getEnv("REDIS_URL", ""),
			CleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Auth: AuthConfig{
			LockoutThreshold:         getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:          getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			TwoFactorMaxAttempts:     getEnvAsInt("TWO_FACTOR_MAX_ATTEMPTS", 5),
			TwoFactorLockoutDuration: getEnvAsDuration("TWO_FACTOR_LOCKOUT_DURATION", 15*time.Minute),
			TOTPIssuer:               getEnv("TOTP_ISSUER", "Wazgo Admin"),
			TOTPSkew:                 uint(getEnvAsInt("TOTP_SKEW", 1)),
			TOTPEncryptionKey:        key,
			EmailCaseInsensitive:     getEnvAsBool("EMAIL_CASE_INSENSITIVE", true),
			TimingDelayBase:          time.Duration(getEnvAsInt("TIMING_DELAY_BASE_MS", 500)) * time.Millisecond,
			TimingDelayRandom:        time.Duration(getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100)) * time.Millisecond,
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
		Admin: BootstrapConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "wazgo"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		ConnectAttempts:   getEnvAsInt("DB_CONNECT_ATTEMPTS", 5),
		ConnectRetryDelay: getEnvAsDuration("DB_CONNECT_RETRY_DELAY", 500*time.Millisecond),
	}
}

// LoadDatabase reads only the database settings, for tools that do not run
// the HTTP service.
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := loadDatabaseConfig()
	if cfg.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1 (got %d)", c.Auth.LockoutThreshold)
	}
	if c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if c.Auth.TwoFactorMaxAttempts < 1 {
		return fmt.Errorf("TWO_FACTOR_MAX_ATTEMPTS must be at least 1 (got %d)", c.Auth.TwoFactorMaxAttempts)
	}
	if c.Auth.TwoFactorLockoutDuration <= 0 {
		return fmt.Errorf("TWO_FACTOR_LOCKOUT_DURATION must be positive")
	}
	if c.Auth.TOTPSkew > 2 {
		return fmt.Errorf("TOTP_SKEW must be between 0 and 2 (got %d)", c.Auth.TOTPSkew)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME cannot be empty")
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// decodeEncryptionKey requires a base64 encoded 32-byte AES-256 key.
func decodeEncryptionKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return []string{}
	}
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
