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
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Classifier   RemoteServiceConfig
	Planner      RemoteServiceConfig
	IssueTracker IssueTrackerConfig
	Notification NotificationConfig
	Workflow     WorkflowConfig
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
	Addr         string
	Password     string
	DB           int
	StreamPrefix string
	StreamMaxLen int64
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret            string
	ApproverTokenTTLMins int
	APIKeyHash           string
}

// RemoteServiceConfig describes a JSON service reached with an API key.
// An empty BaseURL selects the built-in stub.
type RemoteServiceConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// IssueTrackerConfig holds Jira connection values.
type IssueTrackerConfig struct {
	BaseURL        string
	User           string
	Token          string
	ProjectKey     string
	IssueType      string
	TimeoutSeconds int
	MaxRetries     int
	DryRun         bool
}

// NotificationConfig holds the execution/notification service endpoint.
type NotificationConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	DryRun         bool
}

// WorkflowConfig tunes the request workflow.
type WorkflowConfig struct {
	ApproverEmail string
	SaveRetries   int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "it-request-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			StreamPrefix: getEnv("REDIS_EVENT_STREAM_PREFIX", "ticket-events"),
			StreamMaxLen: int64(getEnvAsInt("REDIS_EVENT_STREAM_MAX_LEN", 500)),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("AUTH_JWT_SECRET", "dev-secret"),
			ApproverTokenTTLMins: getEnvAsInt("AUTH_APPROVER_TOKEN_TTL_MINUTES", 24*60),
			APIKeyHash:           os.Getenv("AUTH_API_KEY_BCRYPT_HASH"),
		},
		Classifier: RemoteServiceConfig{
			BaseURL:        os.Getenv("CLASSIFIER_BASE_URL"),
			APIKey:         os.Getenv("CLASSIFIER_API_KEY"),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 30),
		},
		Planner: RemoteServiceConfig{
			BaseURL:        os.Getenv("PLANNER_BASE_URL"),
			APIKey:         os.Getenv("PLANNER_API_KEY"),
			TimeoutSeconds: getEnvAsInt("PLANNER_TIMEOUT_SECONDS", 30),
		},
		IssueTracker: IssueTrackerConfig{
			BaseURL:        os.Getenv("JIRA_BASE_URL"),
			User:           os.Getenv("JIRA_USER"),
			Token:          os.Getenv("JIRA_TOKEN"),
			ProjectKey:     getEnv("JIRA_PROJECT_KEY", "IT"),
			IssueType:      getEnv("JIRA_ISSUE_TYPE", "Task"),
			TimeoutSeconds: getEnvAsInt("JIRA_TIMEOUT_SECONDS", 30),
			MaxRetries:     getEnvAsInt("JIRA_MAX_RETRIES", 3),
			DryRun:         getEnvAsBool("JIRA_DRY_RUN", false),
		},
		Notification: NotificationConfig{
			BaseURL:        os.Getenv("NOTIFY_BASE_URL"),
			APIKey:         os.Getenv("NOTIFY_API_KEY"),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 15),
			DryRun:         getEnvAsBool("NOTIFY_DRY_RUN", false),
		},
		Workflow: WorkflowConfig{
			ApproverEmail: getEnv("WORKFLOW_APPROVER_EMAIL", "it-approvals@example.com"),
			SaveRetries:   getEnvAsInt("WORKFLOW_SAVE_RETRIES", 3),
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

// Timeout returns the per-call timeout for the remote service.
func (r RemoteServiceConfig) Timeout() time.Duration {
	return seconds(r.TimeoutSeconds)
}

// Timeout returns the per-call timeout for Jira.
func (i IssueTrackerConfig) Timeout() time.Duration {
	return seconds(i.TimeoutSeconds)
}

// Timeout returns the per-call timeout for notifications.
func (n NotificationConfig) Timeout() time.Duration {
	return seconds(n.TimeoutSeconds)
}

// ApproverTokenTTL returns the lifetime of minted approver tokens.
func (a AuthConfig) ApproverTokenTTL() time.Duration {
	return time.Duration(a.ApproverTokenTTLMins) * time.Minute
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
