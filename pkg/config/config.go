// Package config loads the bot configuration from a YAML file, environment
// variables prefixed with LICENSEBOT_ and an optional .env file.
package config

import (
	"time"
)

// EnvPrefix is prepended to every environment override, e.g.
// LICENSEBOT_DISCORD_TOKEN or LICENSEBOT_REDIS_ADDR.
const EnvPrefix = "LICENSEBOT"

// Storage and dedup backends.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// Config is the complete bot configuration.
type Config struct {
	Discord   DiscordConfig     `yaml:"discord" mapstructure:"discord"`
	Database  DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Redis     RedisConfig       `yaml:"redis" mapstructure:"redis"`
	Dedup     DedupConfig       `yaml:"dedup" mapstructure:"dedup"`
	Flow      FlowConfig        `yaml:"flow" mapstructure:"flow"`
	Templates TemplatesConfig   `yaml:"templates" mapstructure:"templates"`
	Notify    NotifyConfig      `yaml:"notify" mapstructure:"notify"`
	Metrics   MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig     `yaml:"tracing" mapstructure:"tracing"`
	Logging   LoggingConfigSpec `yaml:"logging" mapstructure:"logging"`
}

// DiscordConfig holds gateway credentials and trigger scope.
type DiscordConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	// AllowedForums restricts triggers to threads under these forum channels.
	// Empty means every forum.
	AllowedForums []string `yaml:"allowedForums,omitempty" mapstructure:"allowedForums"`
}

// DatabaseConfig selects the persistent store.
type DatabaseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// RedisConfig is used when the dedup backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// DedupConfig controls trigger deduplication.
type DedupConfig struct {
	Backend string        `yaml:"backend" mapstructure:"backend"`
	Window  time.Duration `yaml:"window" mapstructure:"window"`
}

// FlowConfig holds the workflow timeouts.
type FlowConfig struct {
	MaxThreadAge time.Duration `yaml:"maxThreadAge" mapstructure:"maxThreadAge"`
	Guidance     time.Duration `yaml:"guidanceTimeout" mapstructure:"guidanceTimeout"`
	Selection    time.Duration `yaml:"selectionTimeout" mapstructure:"selectionTimeout"`
	Publish      time.Duration `yaml:"publishTimeout" mapstructure:"publishTimeout"`
	SetupPublish time.Duration `yaml:"setupPublishTimeout" mapstructure:"setupPublishTimeout"`
	EditorIdle   time.Duration `yaml:"editorIdleTimeout" mapstructure:"editorIdleTimeout"`
	Form         time.Duration `yaml:"formTimeout" mapstructure:"formTimeout"`
}

// TemplatesConfig points at the system template catalog.
type TemplatesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// NotifyConfig configures the backup-permission webhook.
type NotifyConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint      string        `yaml:"endpoint" mapstructure:"endpoint"`
	Token         string        `yaml:"token,omitempty" mapstructure:"token"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSecond float64       `yaml:"ratePerSecond" mapstructure:"ratePerSecond"`
}

// MetricsConfig configures the Prometheus exporter. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// TracingConfig configures the OTLP exporter. An empty Endpoint disables it.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName string `yaml:"serviceName" mapstructure:"serviceName"`
	Insecure    bool   `yaml:"insecure" mapstructure:"insecure"`
}

// Defaults returns a configuration with every timeout and backend set.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "file:licensebot.db?_foreign_keys=on",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "licensebot",
		},
		Dedup: DedupConfig{
			Backend: DedupMemory,
			Window:  5 * time.Minute,
		},
		Flow: FlowConfig{
			MaxThreadAge: 5 * time.Minute,
			Guidance:     180 * time.Second,
			Selection:    120 * time.Second,
			Publish:      180 * time.Second,
			SetupPublish: 120 * time.Second,
			EditorIdle:   600 * time.Second,
			Form:         300 * time.Second,
		},
		Templates: TemplatesConfig{Path: "templates.yaml"},
		Notify: NotifyConfig{
			Timeout:       10 * time.Second,
			RatePerSecond: 2,
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Tracing: TracingConfig{ServiceName: "dc-license-bot"},
		Logging: DefaultLoggingConfig(),
	}
}

// Validate checks the configuration for values the bot cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return &ValidationError{Field: "database.driver", Message: "must be one of: postgres, sqlite", Value: c.Database.Driver}
	}
	if c.Database.DSN == "" {
		return &ValidationError{Field: "database.dsn", Message: "is required"}
	}

	switch c.Dedup.Backend {
	case DedupMemory:
	case DedupRedis:
		if c.Redis.Addr == "" {
			return &ValidationError{Field: "redis.addr", Message: "is required when dedup.backend is redis"}
		}
	default:
		return &ValidationError{Field: "dedup.backend", Message: "must be one of: memory, redis", Value: c.Dedup.Backend}
	}
	if c.Dedup.Window <= 0 {
		return &ValidationError{Field: "dedup.window", Message: "must be positive", Value: c.Dedup.Window.String()}
	}

	timeouts := map[string]time.Duration{
		"flow.maxThreadAge":        c.Flow.MaxThreadAge,
		"flow.guidanceTimeout":     c.Flow.Guidance,
		"flow.selectionTimeout":    c.Flow.Selection,
		"flow.publishTimeout":      c.Flow.Publish,
		"flow.setupPublishTimeout": c.Flow.SetupPublish,
		"flow.editorIdleTimeout":   c.Flow.EditorIdle,
		"flow.formTimeout":         c.Flow.Form,
	}
	for _, field := range sortedKeys(timeouts) {
		if timeouts[field] <= 0 {
			return &ValidationError{Field: field, Message: "must be positive", Value: timeouts[field].String()}
		}
	}

	if c.Notify.Enabled {
		if c.Notify.Endpoint == "" {
			return &ValidationError{Field: "notify.endpoint", Message: "is required when notify.enabled is true"}
		}
		if c.Notify.RatePerSecond <= 0 {
			return &ValidationError{Field: "notify.ratePerSecond", Message: "must be positive"}
		}
	}

	return c.Logging.Validate()
}

// ValidateForRun additionally requires the credentials the gateway needs.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Discord.Token == "" {
		return &ValidationError{Field: "discord.token", Message: "is required (set " + EnvPrefix + "_DISCORD_TOKEN)"}
	}
	return nil
}
