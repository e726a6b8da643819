package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "tmtweb.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TMTWEB_PORT")
	setString(&cfg.Server.Hostname, "TMTWEB_HOSTNAME")

	setString(&cfg.Store.Backend, "TMTWEB_STORE_BACKEND")
	setString(&cfg.Store.Redis.Addr, "TMTWEB_REDIS_ADDR")
	setString(&cfg.Store.Redis.Password, "TMTWEB_REDIS_PASSWORD")
	setInt(&cfg.Store.Redis.DB, "TMTWEB_REDIS_DB")
	setDuration(&cfg.Store.Redis.TaskTTL, "TMTWEB_TASK_TTL")
	setString(&cfg.Store.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Store.Postgres.MaxConns, "TMTWEB_PG_MAX_CONNS")
	setInt32(&cfg.Store.Postgres.MinConns, "TMTWEB_PG_MIN_CONNS")
	setDuration(&cfg.Store.Postgres.MaxConnLifetime, "TMTWEB_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Store.Postgres.MaxConnIdleTime, "TMTWEB_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Store.Postgres.HealthCheck, "TMTWEB_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Git.BasePath, "TMTWEB_CLONE_DIR")
	setString(&cfg.Git.DefaultRef, "TMTWEB_DEFAULT_REF")
	setInt(&cfg.Git.MaxConcurrent, "TMTWEB_GIT_MAX_CONCURRENT")
	setDuration(&cfg.Git.MaxIdle, "TMTWEB_GIT_MAX_IDLE")

	setInt(&cfg.Executor.Workers, "TMTWEB_EXECUTOR_WORKERS")
	setUint64(&cfg.Executor.RetryAttempts, "TMTWEB_RETRY_ATTEMPTS")
	setDuration(&cfg.Executor.RetryBase, "TMTWEB_RETRY_BASE")
	setDuration(&cfg.Executor.DescriptorTimeout, "TMTWEB_DESCRIPTOR_TIMEOUT")

	setInt64(&cfg.Cache.RenderMaxSizeMB, "TMTWEB_RENDER_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.RenderTTL, "TMTWEB_RENDER_CACHE_TTL")

	setString(&cfg.Logging.Level, "TMTWEB_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TMTWEB_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TMTWEB_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "TMTWEB_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TMTWEB_BREAKER_TIMEOUT")

	setBool(&cfg.Tracing.Enabled, "TMTWEB_TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "TMTWEB_TRACING_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Backend {
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required")
		}
	case "postgres":
		if cfg.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required")
		}
		if cfg.Store.Postgres.MaxConns < 1 {
			return errors.New("store.postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.backend must be redis or postgres, got %q", cfg.Store.Backend)
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Git.BasePath == "" {
		return errors.New("git.base_path is required")
	}
	if cfg.Executor.Workers < 1 {
		return errors.New("executor.workers must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
