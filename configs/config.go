package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Sentry struct {
	DSN         string
	Environment string
}

type Config struct {
	PostgresURI         string
	RedisURI            string
	ListenAddr          string
	R2                  R2
	Sentry              Sentry
	SecretKey           string
	SchedulerSpec       string
	WorkerConcurrency   int
	EnabledAccountTypes []string

	MaxPostFailures        int
	PostFailureRetryWait   time.Duration
	DefaultJobLock         time.Duration
	AdapterTimeout         time.Duration
	OrphanMediaMaxAge      time.Duration
	OrphanMediaCleanupSpec string
	TaskUniqueFor          time.Duration
	ProfileCacheTTL        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Sentry: Sentry{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("SENTRY_ENVIRONMENT", "development"),
		},
		SecretKey:           getEnv("SECRET_KEY", ""),
		SchedulerSpec:       getEnv("SCHEDULER_SPEC", "@every 00h01m00s"),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 10),
		EnabledAccountTypes: getEnvList("ENABLED_ACCOUNT_TYPES", "mast"),

		MaxPostFailures:        getEnvInt("MAX_POST_FAILURES", 20),
		PostFailureRetryWait:   getEnvSeconds("POST_FAILURE_RETRY_WAIT", 4800),
		DefaultJobLock:         getEnvSeconds("DEFAULT_JOB_LOCK_SECONDS", 4800),
		AdapterTimeout:         getEnvSeconds("ADAPTER_TIMEOUT_SECONDS", 60),
		OrphanMediaMaxAge:      time.Duration(getEnvInt("ORPHAN_MEDIA_MAX_AGE_DAYS", 2)) * 24 * time.Hour,
		OrphanMediaCleanupSpec: getEnv("ORPHAN_MEDIA_CLEANUP_SPEC", "@every 06h00m00s"),
		TaskUniqueFor:          getEnvSeconds("TASK_UNIQUE_SECONDS", 300),
		ProfileCacheTTL:        getEnvSeconds("PROFILE_CACHE_SECONDS", 300),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to defaultValue when the variable is unset or not a number.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
