// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/services"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
	Log         LogConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	Port              string
	TrustProxyHeaders bool
}

type StorageConfig struct {
	Type      string
	Namespace string
	Redis     RedisConfig
	SQLite    SQLiteConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
}

type RateLimiterConfig struct {
	Categories []string
	// File é um YAML opcional com limites que sobrepõem os do schema.
	File  string
	Watch bool
}

type LogConfig struct {
	Level  slog.Level
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	trustProxy, err := getBool("TRUST_PROXY_HEADERS", false)
	if err != nil {
		return Config{}, err
	}
	server := ServerConfig{Port: getEnv("SERVER_PORT", "8080"), TrustProxyHeaders: trustProxy}

	storage, err := buildStorageConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimiter, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	logConfig, err := buildLogConfig()
	if err != nil {
		return Config{}, err
	}

	metricsEnabled, err := getBool("METRICS_ENABLED", true)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server:      server,
		Storage:     storage,
		RateLimiter: rateLimiter,
		Log:         logConfig,
		Metrics:     MetricsConfig{Enabled: metricsEnabled},
	}, nil
}

func buildStorageConfig() (StorageConfig, error) {
	storageType := strings.ToLower(getEnv("STORAGE_TYPE", "redis"))
	switch storageType {
	case "redis", "memory", "sqlite":
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_TYPE: %s", storageType)
	}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return StorageConfig{}, err
	}

	busyTimeoutMs, err := strconv.Atoi(getEnv("SQLITE_BUSY_TIMEOUT_MS", "5000"))
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid SQLITE_BUSY_TIMEOUT_MS: %w", err)
	}

	return StorageConfig{
		Type:      storageType,
		Namespace: getEnv("RATE_LIMIT_NAMESPACE", domain.DefaultNamespace),
		Redis:     redisConfig,
		SQLite: SQLiteConfig{
			Path:        getEnv("SQLITE_PATH", "ratelimit.db"),
			BusyTimeout: time.Duration(busyTimeoutMs) * time.Millisecond,
		},
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Host:     host,
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	categories := splitList(os.Getenv("RATE_LIMIT_CATEGORIES"))
	if len(categories) == 0 {
		categories = append([]string(nil), services.DefaultCategories...)
	}

	watch, err := getBool("RATE_LIMIT_WATCH", false)
	if err != nil {
		return RateLimiterConfig{}, err
	}

	file := strings.TrimSpace(os.Getenv("RATE_LIMIT_FILE"))
	if watch && file == "" {
		return RateLimiterConfig{}, fmt.Errorf("RATE_LIMIT_WATCH requires RATE_LIMIT_FILE")
	}

	return RateLimiterConfig{
		Categories: categories,
		File:       file,
		Watch:      watch,
	}, nil
}

func buildLogConfig() (LogConfig, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	format := strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if format != "json" && format != "text" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT: %s", format)
	}

	return LogConfig{Level: level, Format: format}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
