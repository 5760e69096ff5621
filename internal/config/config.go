package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Freshdesk FreshdeskConfig
	Broker    BrokerConfig
	Sync      SyncConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how bearer tokens are verified.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// FreshdeskConfig points at the external ticketing service.
type FreshdeskConfig struct {
	Domain         string
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	PerPage        int
}

// BrokerConfig controls task publication.
type BrokerConfig struct {
	StreamPrefix          string
	StreamMaxLen          int64
	PublishTimeoutSeconds int
}

// SyncConfig holds defaults for the persisted sync settings and run limits.
type SyncConfig struct {
	DefaultCron         string
	DefaultEnabled      bool
	ConversationWorkers int
	RunTimeoutSeconds   int
	Timezone            string
}

const maxPerPage = 100

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	perPage := getEnvAsInt("FRESHDESK_PER_PAGE", maxPerPage)
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-sync-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Freshdesk: FreshdeskConfig{
			Domain:         os.Getenv("FRESHDESK_DOMAIN"),
			BaseURL:        os.Getenv("FRESHDESK_BASE_URL"),
			APIKey:         os.Getenv("FRESHDESK_API_KEY"),
			TimeoutSeconds: getEnvAsInt("FRESHDESK_TIMEOUT_SECONDS", 30),
			PerPage:        perPage,
		},
		Broker: BrokerConfig{
			StreamPrefix:          getEnv("BROKER_STREAM_PREFIX", ""),
			StreamMaxLen:          int64(getEnvAsInt("BROKER_STREAM_MAXLEN", 100000)),
			PublishTimeoutSeconds: getEnvAsInt("BROKER_PUBLISH_TIMEOUT_SECONDS", 5),
		},
		Sync: SyncConfig{
			DefaultCron:         getEnv("SYNC_DEFAULT_CRON", "0 0/5 * * * ?"),
			DefaultEnabled:      getEnvAsBool("SYNC_DEFAULT_ENABLED", true),
			ConversationWorkers: getEnvAsInt("SYNC_CONVERSATION_WORKERS", 4),
			RunTimeoutSeconds:   getEnvAsInt("SYNC_RUN_TIMEOUT_SECONDS", 600),
			Timezone:            getEnv("SYNC_TIMEZONE", "UTC"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// Timeout bounds every call to the external ticketing API.
func (f FreshdeskConfig) Timeout() time.Duration {
	return seconds(f.TimeoutSeconds)
}

// APIBaseURL returns the API root, preferring an explicit override over the account domain.
func (f FreshdeskConfig) APIBaseURL() string {
	if f.BaseURL != "" {
		return f.BaseURL
	}
	if f.Domain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/api/v2", f.Domain)
}

// PublishTimeout bounds a single broker write.
func (b BrokerConfig) PublishTimeout() time.Duration {
	return seconds(b.PublishTimeoutSeconds)
}

// RunTimeout bounds the external calls made by one sync run.
func (s SyncConfig) RunTimeout() time.Duration {
	return seconds(s.RunTimeoutSeconds)
}

// Location resolves the scheduler timezone, falling back to UTC.
func (s SyncConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
