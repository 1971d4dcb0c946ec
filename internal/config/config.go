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
	SLA       SLAConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
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

// AuthConfig defines operator-token parameters for the ops API.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	OperatorKeyHash string
}

// SLAConfig tunes the breach evaluator.
type SLAConfig struct {
	ScanIntervalMinutes int
	AtRiskWindowMinutes int
	AtRiskRepeat        bool
}

// QueueConfig tunes the notification dispatch queue and its workers.
type QueueConfig struct {
	Namespace          string
	WorkerCount        int
	MaxAttempts        int
	BackoffBaseSeconds int
	BackoffCapSeconds  int
	PollIntervalMs     int
}

// SchedulerConfig tunes the periodic maintenance loops.
type SchedulerConfig struct {
	SweepIntervalMinutes      int
	AutoAssignIntervalMinutes int
	AutoAssignBatch           int
	SelfHealIntervalMinutes   int
	ReportIntervalHours       int
	IdleThresholdMinutes      int
	StaleThresholdHours       int
	StuckPendingMinutes       int
	TickTimeoutSeconds        int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "sla-engine"),
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
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
			OperatorKeyHash: os.Getenv("AUTH_OPERATOR_KEY_HASH"),
		},
		SLA: SLAConfig{
			ScanIntervalMinutes: getEnvAsInt("SLA_SCAN_INTERVAL_MINUTES", 5),
			AtRiskWindowMinutes: getEnvAsInt("SLA_AT_RISK_WINDOW_MINUTES", 30),
			AtRiskRepeat:        getEnvAsBool("SLA_AT_RISK_REPEAT", true),
		},
		Queue: QueueConfig{
			Namespace:          getEnv("QUEUE_NAMESPACE", "sla-engine"),
			WorkerCount:        getEnvAsInt("QUEUE_WORKER_COUNT", 4),
			MaxAttempts:        getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			BackoffBaseSeconds: getEnvAsInt("QUEUE_BACKOFF_BASE_SECONDS", 5),
			BackoffCapSeconds:  getEnvAsInt("QUEUE_BACKOFF_CAP_SECONDS", 300),
			PollIntervalMs:     getEnvAsInt("QUEUE_POLL_INTERVAL_MS", 250),
		},
		Scheduler: SchedulerConfig{
			SweepIntervalMinutes:      getEnvAsInt("SCHED_SWEEP_INTERVAL_MINUTES", 30),
			AutoAssignIntervalMinutes: getEnvAsInt("SCHED_AUTO_ASSIGN_INTERVAL_MINUTES", 60),
			AutoAssignBatch:           getEnvAsInt("SCHED_AUTO_ASSIGN_BATCH", 50),
			SelfHealIntervalMinutes:   getEnvAsInt("SCHED_SELF_HEAL_INTERVAL_MINUTES", 10),
			ReportIntervalHours:       getEnvAsInt("SCHED_REPORT_INTERVAL_HOURS", 24),
			IdleThresholdMinutes:      getEnvAsInt("SCHED_IDLE_THRESHOLD_MINUTES", 30),
			StaleThresholdHours:       getEnvAsInt("SCHED_STALE_THRESHOLD_HOURS", 24),
			StuckPendingMinutes:       getEnvAsInt("SCHED_STUCK_PENDING_MINUTES", 5),
			TickTimeoutSeconds:        getEnvAsInt("SCHED_TICK_TIMEOUT_SECONDS", 60),
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
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ScanInterval returns the breach scan cadence.
func (s SLAConfig) ScanInterval() time.Duration {
	return time.Duration(s.ScanIntervalMinutes) * time.Minute
}

// AtRiskWindow returns the lookahead window for at-risk classification.
func (s SLAConfig) AtRiskWindow() time.Duration {
	return time.Duration(s.AtRiskWindowMinutes) * time.Minute
}

// PollInterval returns how long an idle worker sleeps between dequeues.
func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

// BackoffBase returns the first retry delay.
func (q QueueConfig) BackoffBase() time.Duration {
	return time.Duration(q.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the maximum retry delay.
func (q QueueConfig) BackoffCap() time.Duration {
	return time.Duration(q.BackoffCapSeconds) * time.Second
}

// SweepInterval returns the idle/stale sweep cadence.
func (s SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

// AutoAssignInterval returns the auto-assignment cadence.
func (s SchedulerConfig) AutoAssignInterval() time.Duration {
	return time.Duration(s.AutoAssignIntervalMinutes) * time.Minute
}

// SelfHealInterval returns the stuck-recovery and orphan-cleanup cadence.
func (s SchedulerConfig) SelfHealInterval() time.Duration {
	return time.Duration(s.SelfHealIntervalMinutes) * time.Minute
}

// ReportInterval returns the daily report cadence.
func (s SchedulerConfig) ReportInterval() time.Duration {
	return time.Duration(s.ReportIntervalHours) * time.Hour
}

// TickTimeout bounds a single scheduler tick.
func (s SchedulerConfig) TickTimeout() time.Duration {
	return time.Duration(s.TickTimeoutSeconds) * time.Second
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
