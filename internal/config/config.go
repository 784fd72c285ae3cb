// Package config provides hierarchical configuration loading for TaskFleet.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the TaskFleet dispatcher.
type Config struct {
	Server   Server   `yaml:"server"`
	Postgres Postgres `yaml:"postgres"`
	NATS     NATS     `yaml:"nats"`
	LiteLLM  LiteLLM  `yaml:"litellm"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Budget   Budget   `yaml:"budget"`
	Router   Router   `yaml:"router"`
	Workers  Workers  `yaml:"workers"`
	Tools    Tools    `yaml:"tools"`
	Alerts   Alerts   `yaml:"alerts"`
	Otel     Otel     `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port string `yaml:"port"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN
// disables the audit journal.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL     string        `yaml:"url"`
	AckWait time.Duration `yaml:"ack_wait"`
}

// LiteLLM holds LiteLLM proxy configuration.
type LiteLLM struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Window      time.Duration `yaml:"window"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// Budget holds session budget configuration.
type Budget struct {
	SessionUSD float64 `yaml:"session_usd"`
}

// Router holds routing configuration.
type Router struct {
	CacheCapacity int `yaml:"cache_capacity"`
}

// Workers holds the worker pool configuration shared by all roles.
type Workers struct {
	Roles               []string      `yaml:"roles"`
	MaxConcurrency      int           `yaml:"max_concurrency"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	LeaseExtendInterval time.Duration `yaml:"lease_extend_interval"`
	LeaseSeconds        int           `yaml:"lease_seconds"`
	DrainTimeout        time.Duration `yaml:"drain_timeout"`
}

// Tools holds tool registry configuration.
type Tools struct {
	CacheEntries int           `yaml:"cache_entries"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// Alerts holds alert fan-out configuration.
type Alerts struct {
	DiscordWebhookURL string   `yaml:"discord_webhook_url"`
	DefaultChannels   []string `yaml:"default_channels"`
}

// Otel holds OpenTelemetry exporter configuration. An empty endpoint
// disables metric export.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port: "8080",
		},
		Postgres: Postgres{
			DSN:             "",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
		},
		NATS: NATS{
			URL:     "nats://localhost:4222",
			AckWait: time.Minute,
		},
		LiteLLM: LiteLLM{
			URL:       "http://localhost:4000",
			Model:     "openai/gpt-4o-mini",
			MaxTokens: 4096,
		},
		Logging: Logging{
			Level:   "info",
			Service: "taskfleet",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Window:      time.Minute,
			Cooldown:    30 * time.Second,
		},
		Budget: Budget{
			SessionUSD: 25,
		},
		Router: Router{
			CacheCapacity: 1000,
		},
		Workers: Workers{
			Roles:               []string{"dev", "research", "documentation", "concierge"},
			MaxConcurrency:      4,
			PollInterval:        2 * time.Second,
			LeaseExtendInterval: 15 * time.Second,
			LeaseSeconds:        60,
			DrainTimeout:        30 * time.Second,
		},
		Tools: Tools{
			CacheEntries: 1024,
			CacheTTL:     time.Minute,
		},
		Alerts: Alerts{
			DefaultChannels: []string{"discord"},
		},
	}
}
