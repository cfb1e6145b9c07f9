package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	defaultTokenTTL = 7 * 24 * time.Hour
)

// ErrMissingJWTSecret is returned when AUTH_JWT_SECRET is not configured.
var ErrMissingJWTSecret = errors.New("AUTH_JWT_SECRET is required")

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	AuthJWTSecret string
	AuthTokenTTL  time.Duration
	AuthzBackend  string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	ReportPolicyPath string

	SchedulerInterval time.Duration

	OTLPEndpoint string

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

	Redis RedisConfig
	Email EmailConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:                getenv("APP_SERVICE", "floodwatch"),
		AppVersion:             getenv("APP_VERSION", "0.1.0"),
		Environment:            normalizeEnvironment(getenv("ENVIRONMENT", EnvDevelopment)),
		HTTPAddr:               getenv("HTTP_ADDR", ":8080"),
		NodeID:                 int64(getenvInt("NODE_ID", 1)),
		AuthJWTSecret:          strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		AuthTokenTTL:           getenvDuration("AUTH_TOKEN_TTL", defaultTokenTTL),
		AuthzBackend:           strings.ToLower(getenv("AUTHZ_BACKEND", "casbin")),
		BootstrapAdminEmail:    strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_EMAIL", "")),
		BootstrapAdminPassword: getenv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		ReportPolicyPath:       strings.TrimSpace(getenv("REPORT_POLICY_PATH", "")),
		SchedulerInterval:      getenvDuration("SCHEDULER_INTERVAL", time.Minute),
		OTLPEndpoint:           getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:                 getenv("DATABASE_TYPE", "postgres"),
		DBHost:                 getenv("DATABASE_HOST", "localhost"),
		DBPort:                 getenv("DATABASE_PORT", "5432"),
		DBName:                 getenv("DATABASE_NAME", "floodwatch"),
		DBUser:                 getenv("DATABASE_USER", "postgres"),
		DBPassword:             getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:              getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:          getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:          getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:      getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:      getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@floodwatch.local"),
		},
	}
}

// Validate rejects configurations the process must not start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AuthJWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	if c.AuthTokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func normalizeEnvironment(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "prod", EnvProduction:
		return EnvProduction
	case EnvTest:
		return EnvTest
	default:
		return EnvDevelopment
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
