package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	OpenAI    OpenAIConfig
	Twitter   TwitterConfig
	Ingest    IngestConfig
	Scheduler SchedulerConfig
	Docs      DocsConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds JWT parameters.
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
}

// OpenAIConfig holds model-call parameters.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// TwitterConfig holds the X API credentials.
type TwitterConfig struct {
	BearerToken string
}

// IngestConfig tunes the source check pipeline.
type IngestConfig struct {
	ConcurrentFetches int
	PerSourceTimeout  time.Duration
	FetchMaxRetries   int
	FetchBackoff      time.Duration
	MinContentLength  int
}

// SchedulerConfig holds the automatic run schedule.
type SchedulerConfig struct {
	CheckInterval        time.Duration
	BriefingTime         string // "15:04", empty disables
	ProfileReviewWeekday string // e.g. "monday"
	ProfileReviewTime    string // "15:04"
}

// DocsConfig points at the external document store used by publishing.
type DocsConfig struct {
	BaseURL  string
	APIKey   string
	FolderID string
	Timeout  time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute

	defaultTokenDuration = 24 * time.Hour

	defaultOpenAIModel   = "gpt-4o-mini"
	defaultLLMRetries    = 3
	defaultLLMTimeout    = 180 * time.Second
	defaultFetchRetries  = 3
	defaultFetchBackoff  = 1 * time.Second
	defaultFetchTimeout  = 2 * time.Minute
	defaultConcurrency   = 4
	defaultMinContentLen = 40

	defaultCheckInterval = 30 * time.Minute
	defaultBriefingTime  = "08:00"
	defaultReviewWeekday = "monday"
	defaultReviewTime    = "09:00"

	defaultDocsTimeout = 30 * time.Second
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    defaultMaxOpenConns,
			MaxIdleConns:    defaultMaxIdleConns,
			ConnMaxLifetime: defaultConnMaxLifetime,
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			TokenDuration: defaultTokenDuration,
		},
		OpenAI: OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			Model:      getEnv("OPENAI_MODEL", defaultOpenAIModel),
			MaxRetries: defaultLLMRetries,
			Timeout:    defaultLLMTimeout,
		},
		Twitter: TwitterConfig{
			BearerToken: os.Getenv("TWITTER_BEARER_TOKEN"),
		},
		Ingest: IngestConfig{
			ConcurrentFetches: defaultConcurrency,
			PerSourceTimeout:  defaultFetchTimeout,
			FetchMaxRetries:   defaultFetchRetries,
			FetchBackoff:      defaultFetchBackoff,
			MinContentLength:  defaultMinContentLen,
		},
		Scheduler: SchedulerConfig{
			CheckInterval:        defaultCheckInterval,
			BriefingTime:         getEnv("BRIEFING_TIME", defaultBriefingTime),
			ProfileReviewWeekday: getEnv("PROFILE_REVIEW_WEEKDAY", defaultReviewWeekday),
			ProfileReviewTime:    getEnv("PROFILE_REVIEW_TIME", defaultReviewTime),
		},
		Docs: DocsConfig{
			BaseURL:  os.Getenv("DOCS_BASE_URL"),
			APIKey:   os.Getenv("DOCS_API_KEY"),
			FolderID: os.Getenv("DOCS_FOLDER_ID"),
			Timeout:  defaultDocsTimeout,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
		}
		cfg.Database.MaxOpenConns = n
	}

	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
		}
		cfg.Database.MaxIdleConns = n
	}

	if v := os.Getenv("TOKEN_DURATION_HOURS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TOKEN_DURATION_HOURS: %w", err)
		}
		cfg.Auth.TokenDuration = time.Duration(n) * time.Hour
	}

	if v := os.Getenv("LLM_MAX_RETRIES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
		}
		cfg.OpenAI.MaxRetries = n
	}

	if v := os.Getenv("LLM_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LLM_TIMEOUT_SECONDS: %w", err)
		}
		cfg.OpenAI.Timeout = d
	}

	if v := os.Getenv("INGEST_CONCURRENT_FETCHES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INGEST_CONCURRENT_FETCHES: %w", err)
		}
		cfg.Ingest.ConcurrentFetches = n
	}

	if v := os.Getenv("INGEST_SOURCE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INGEST_SOURCE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Ingest.PerSourceTimeout = d
	}

	if v := os.Getenv("INGEST_FETCH_MAX_RETRIES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INGEST_FETCH_MAX_RETRIES: %w", err)
		}
		cfg.Ingest.FetchMaxRetries = n
	}

	if v := os.Getenv("INGEST_FETCH_BACKOFF_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INGEST_FETCH_BACKOFF_SECONDS: %w", err)
		}
		cfg.Ingest.FetchBackoff = d
	}

	if v := os.Getenv("INGEST_MIN_CONTENT_LENGTH"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INGEST_MIN_CONTENT_LENGTH: %w", err)
		}
		cfg.Ingest.MinContentLength = n
	}

	if v := os.Getenv("CHECK_INTERVAL_MINUTES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CHECK_INTERVAL_MINUTES: %w", err)
		}
		cfg.Scheduler.CheckInterval = time.Duration(n) * time.Minute
	}

	if v := cfg.Scheduler.BriefingTime; v != "" {
		if _, err := time.Parse("15:04", v); err != nil {
			return Config{}, fmt.Errorf("invalid BRIEFING_TIME: must be HH:MM")
		}
	}

	if v := cfg.Scheduler.ProfileReviewTime; v != "" {
		if _, err := time.Parse("15:04", v); err != nil {
			return Config{}, fmt.Errorf("invalid PROFILE_REVIEW_TIME: must be HH:MM")
		}
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
