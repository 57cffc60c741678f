package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Queue     QueueConfig
	Tracking  TrackingConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type QueueConfig struct {
	// UserBatchSize caps one authenticated-user invocation.
	UserBatchSize int
	// CronPerUser caps each user's share of a scheduled run.
	CronPerUser int
	// CronUserLimit bounds how many paid users one cron run iterates.
	CronUserLimit int
	// StaleAfter is how long an item may sit in "processing" before a
	// cron run releases it back to pending.
	StaleAfter time.Duration
}

type TrackingConfig struct {
	// PixelBaseURL, when set, is the open-tracking endpoint; a 1x1 image
	// pointing at each send's tracking id is appended to outgoing bodies.
	PixelBaseURL string
}

type SchedulerConfig struct {
	// Interval enables the built-in cron ticker when > 0. Deployments
	// with an external scheduler leave it unset and POST with the cron
	// token instead.
	Interval time.Duration
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: mustEnv("POSTGRES_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: mustEnv("JWT_SECRET"),
		},
		Queue: QueueConfig{
			UserBatchSize: getEnvInt("QUEUE_USER_BATCH", 5),
			CronPerUser:   getEnvInt("QUEUE_CRON_PER_USER", 2),
			CronUserLimit: getEnvInt("QUEUE_CRON_USER_LIMIT", 200),
			StaleAfter:    time.Duration(getEnvInt("QUEUE_STALE_AFTER_SECONDS", 900)) * time.Second,
		},
		Tracking: TrackingConfig{
			PixelBaseURL: getEnv("TRACKING_PIXEL_BASE_URL", ""),
		},
		Scheduler: SchedulerConfig{
			Interval: time.Duration(getEnvInt("SCHED_INTERVAL_SECONDS", 0)) * time.Second,
		},
		Redis: loadRedisConfig(),
	}

	validate(cfg)
	return cfg, nil
}

func loadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
		TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 30*86400)) * time.Second,
	}
}

func validate(cfg *Config) {
	if cfg.Queue.UserBatchSize <= 0 {
		panic("QUEUE_USER_BATCH must be > 0")
	}
	if cfg.Queue.CronPerUser <= 0 {
		panic("QUEUE_CRON_PER_USER must be > 0")
	}
	if cfg.Queue.CronUserLimit <= 0 {
		panic("QUEUE_CRON_USER_LIMIT must be > 0")
	}
	if cfg.Queue.StaleAfter <= 0 {
		panic("QUEUE_STALE_AFTER_SECONDS must be > 0")
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
