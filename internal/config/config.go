// Package config provides configuration management for the copy router: the
// process-level app config (YAML) and the routing table (JSON) that maps
// source accounts to destinations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves fields unset.
const (
	defaultTickInterval       = 2 * time.Second
	defaultReconcilerInterval = 60 * time.Second
	defaultOrphanGrace        = 30 * time.Second
	defaultShutdownGrace      = 30 * time.Second
	defaultControlPort        = 8086
	defaultEventQueueSize     = 64
)

// Config is the complete process configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Pool        PoolConfig        `yaml:"pool"`
	Store       StoreConfig       `yaml:"store"`
	Control     ControlConfig     `yaml:"control"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Copier      CopierConfig      `yaml:"copier"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	RoutesPath  string            `yaml:"routes_path"`
}

// EnvironmentConfig defines process-level settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// PoolConfig defines how to reach the pool service.
type PoolConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"` // per-call timeout, default 30s
}

// StoreConfig defines the mapping store connection.
type StoreConfig struct {
	URL       string `yaml:"url"` // redis://host:port/db, or "memory" for dry runs
	ClosedTTL string `yaml:"closed_ttl"`
}

// ControlConfig defines the control API listener.
type ControlConfig struct {
	Port int `yaml:"port"`
	// CallbackURL is the externally reachable base URL the pool uses for
	// reconnection callbacks. Empty disables callback registration.
	CallbackURL string `yaml:"callback_url"`
}

// TelegramConfig defines the alerting channel. Empty token disables alerts.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// CopierConfig tunes the per-source copy traders.
type CopierConfig struct {
	TickInterval   string `yaml:"tick_interval"`
	EventQueueSize int    `yaml:"event_queue_size"`
	ShutdownGrace  string `yaml:"shutdown_grace"`
}

// ReconcilerConfig tunes the orphan reconciler.
type ReconcilerConfig struct {
	Interval    string `yaml:"interval"`
	OrphanGrace string `yaml:"orphan_grace"`
}

// Load reads the app config, expands environment variables, applies env
// overrides and validates the result.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("POOL_API_URL"); v != "" {
		c.Pool.URL = v
	}
	if v := os.Getenv("MAPPING_STORE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("CONTROL_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Control.Port = port
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Environment.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Control.Port == 0 {
		c.Control.Port = defaultControlPort
	}
	if c.Copier.EventQueueSize == 0 {
		c.Copier.EventQueueSize = defaultEventQueueSize
	}
	if c.RoutesPath == "" {
		c.RoutesPath = "routes.json"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn or error")
	}
	if c.Pool.URL == "" {
		return fmt.Errorf("pool.url is required")
	}
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	if c.Control.Port <= 0 || c.Control.Port > 65535 {
		return fmt.Errorf("control.port must be a valid port")
	}
	for name, raw := range map[string]string{
		"pool.timeout":            c.Pool.Timeout,
		"store.closed_ttl":        c.Store.ClosedTTL,
		"copier.tick_interval":    c.Copier.TickInterval,
		"copier.shutdown_grace":   c.Copier.ShutdownGrace,
		"reconciler.interval":     c.Reconciler.Interval,
		"reconciler.orphan_grace": c.Reconciler.OrphanGrace,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s invalid: %w", name, err)
		}
	}
	return nil
}

// TickInterval returns the copier observation cadence.
func (c *Config) TickInterval() time.Duration {
	return durationOr(c.Copier.TickInterval, defaultTickInterval)
}

// ReconcilerInterval returns the orphan reconciler cadence.
func (c *Config) ReconcilerInterval() time.Duration {
	return durationOr(c.Reconciler.Interval, defaultReconcilerInterval)
}

// OrphanGrace returns the minimum delay between the two snapshots that
// confirm an orphan.
func (c *Config) OrphanGrace() time.Duration {
	return durationOr(c.Reconciler.OrphanGrace, defaultOrphanGrace)
}

// ShutdownGrace returns the bounded drain deadline on shutdown.
func (c *Config) ShutdownGrace() time.Duration {
	return durationOr(c.Copier.ShutdownGrace, defaultShutdownGrace)
}

// PoolTimeout returns the per-call pool timeout.
func (c *Config) PoolTimeout() time.Duration {
	return durationOr(c.Pool.Timeout, 30*time.Second)
}

// ClosedTTL returns the recently-closed record TTL.
func (c *Config) ClosedTTL() time.Duration {
	return durationOr(c.Store.ClosedTTL, 15*time.Minute)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
