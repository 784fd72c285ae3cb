package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskfleet.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
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
	data, err := os.ReadFile(path)
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
	setString(&cfg.Server.Port, "TASKFLEET_PORT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TASKFLEET_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TASKFLEET_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TASKFLEET_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TASKFLEET_PG_MAX_CONN_IDLE_TIME")
	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.NATS.AckWait, "TASKFLEET_NATS_ACK_WAIT")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.APIKey, "LITELLM_API_KEY")
	setString(&cfg.LiteLLM.Model, "TASKFLEET_MODEL")
	setInt(&cfg.LiteLLM.MaxTokens, "TASKFLEET_MAX_TOKENS")
	setString(&cfg.Logging.Level, "TASKFLEET_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKFLEET_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TASKFLEET_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "TASKFLEET_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Window, "TASKFLEET_BREAKER_WINDOW")
	setDuration(&cfg.Breaker.Cooldown, "TASKFLEET_BREAKER_COOLDOWN")
	setFloat64(&cfg.Budget.SessionUSD, "TASKFLEET_BUDGET_SESSION_USD")
	setInt(&cfg.Router.CacheCapacity, "TASKFLEET_ROUTER_CACHE_CAPACITY")
	setStrings(&cfg.Workers.Roles, "TASKFLEET_WORKER_ROLES")
	setInt(&cfg.Workers.MaxConcurrency, "TASKFLEET_WORKER_MAX_CONCURRENCY")
	setDuration(&cfg.Workers.PollInterval, "TASKFLEET_WORKER_POLL_INTERVAL")
	setDuration(&cfg.Workers.LeaseExtendInterval, "TASKFLEET_WORKER_LEASE_EXTEND_INTERVAL")
	setInt(&cfg.Workers.LeaseSeconds, "TASKFLEET_WORKER_LEASE_SECONDS")
	setDuration(&cfg.Workers.DrainTimeout, "TASKFLEET_WORKER_DRAIN_TIMEOUT")
	setInt(&cfg.Tools.CacheEntries, "TASKFLEET_TOOLS_CACHE_ENTRIES")
	setDuration(&cfg.Tools.CacheTTL, "TASKFLEET_TOOLS_CACHE_TTL")
	setString(&cfg.Alerts.DiscordWebhookURL, "TASKFLEET_DISCORD_WEBHOOK_URL")
	setStrings(&cfg.Alerts.DefaultChannels, "TASKFLEET_ALERT_CHANNELS")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Budget.SessionUSD <= 0 {
		return errors.New("budget.session_usd must be > 0")
	}
	if len(cfg.Workers.Roles) == 0 {
		return errors.New("workers.roles must not be empty")
	}
	if cfg.Workers.MaxConcurrency < 1 {
		return errors.New("workers.max_concurrency must be >= 1")
	}
	if cfg.Router.CacheCapacity < 2 {
		return errors.New("router.cache_capacity must be >= 2")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
