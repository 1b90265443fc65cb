// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Auth          AuthConfig         `mapstructure:"auth"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Source        SourceConfig       `mapstructure:"source"`
	Poller        PollerConfig       `mapstructure:"poller"`
	Matcher       MatcherConfig      `mapstructure:"matcher"`
	Subscriptions SubscriptionConfig `mapstructure:"subscriptions"`
	Cache         CacheConfig        `mapstructure:"cache"`
	DB            DBConfig           `mapstructure:"db"`
	Notify        NotifyConfig       `mapstructure:"notify"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SourceConfig describes the remote board service.
type SourceConfig struct {
	SiteBase      string        `mapstructure:"site_base"`
	APIBase       string        `mapstructure:"api_base"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
}

// PollerConfig governs cycle execution.
type PollerConfig struct {
	CatalogConcurrency int           `mapstructure:"catalog_concurrency"`
	PartialFetch       string        `mapstructure:"partial_fetch"`
	CycleTimeout       time.Duration `mapstructure:"cycle_timeout"`
	QueueDepth         int           `mapstructure:"queue_depth"`
	Interval           time.Duration `mapstructure:"interval"`
}

// MatcherConfig tunes the compiled term cache.
type MatcherConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// SubscriptionConfig selects where the subscription document comes from.
type SubscriptionConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// CacheConfig selects the link cache backend.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	File    string `mapstructure:"file"`
	Bucket  string `mapstructure:"bucket"`
	Object  string `mapstructure:"object"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// NotifyConfig selects how webhook payloads are delivered.
type NotifyConfig struct {
	Backend      string            `mapstructure:"backend"`
	ProjectID    string            `mapstructure:"project_id"`
	Topic        string            `mapstructure:"topic"`
	Webhooks     map[string]string `mapstructure:"webhooks"`
	RetryMax     int               `mapstructure:"retry_max"`
	RetryWaitMin time.Duration     `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration     `mapstructure:"retry_wait_max"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
	BackendPubSub   = "pubsub"
	BackendWebhook  = "webhook"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("source.site_base", "https://boards.4chan.org")
	v.SetDefault("source.api_base", "https://a.4cdn.org")
	v.SetDefault("source.user_agent", "catalog-alerts/0.1")
	v.SetDefault("source.timeout", 15*time.Second)
	v.SetDefault("source.rate_per_second", 1.0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("source.cooldown", 30*time.Second)
	v.SetDefault("poller.catalog_concurrency", 4)
	v.SetDefault("poller.partial_fetch", "abort")
	v.SetDefault("poller.cycle_timeout", 5*time.Minute)
	v.SetDefault("poller.queue_depth", 4)
	v.SetDefault("poller.interval", time.Duration(0))
	v.SetDefault("matcher.cache_ttl", time.Hour)
	v.SetDefault("subscriptions.backend", BackendFile)
	v.SetDefault("subscriptions.path", "subscriptions.yaml")
	v.SetDefault("cache.backend", BackendLocal)
	v.SetDefault("cache.dir", "data")
	v.SetDefault("cache.file", "link_cache.json")
	v.SetDefault("cache.bucket", "")
	v.SetDefault("cache.object", "catalog-alerts/link_cache.json")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("notify.backend", BackendWebhook)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.retry_max", 3)
	v.SetDefault("notify.retry_wait_min", 500*time.Millisecond)
	v.SetDefault("notify.retry_wait_max", 5*time.Second)
	v.SetDefault("notify.timeout", 10*time.Second)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Source.RatePerSecond <= 0 {
		return fmt.Errorf("source.rate_per_second must be > 0")
	}
	if c.Poller.CatalogConcurrency <= 0 {
		return fmt.Errorf("poller.catalog_concurrency must be > 0")
	}
	if c.Poller.QueueDepth <= 0 {
		return fmt.Errorf("poller.queue_depth must be > 0")
	}
	switch c.Poller.PartialFetch {
	case "abort", "skip":
	default:
		return fmt.Errorf("poller.partial_fetch must be abort or skip, got %q", c.Poller.PartialFetch)
	}
	if c.Poller.Interval < 0 {
		return fmt.Errorf("poller.interval must be >= 0")
	}

	switch c.Subscriptions.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Subscriptions.Path) == "" {
			return fmt.Errorf("subscriptions.path is required for the file backend")
		}
	case BackendPostgres:
	default:
		return fmt.Errorf("unknown subscriptions.backend %q", c.Subscriptions.Backend)
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendPostgres:
	case BackendLocal:
		if strings.TrimSpace(c.Cache.Dir) == "" {
			return fmt.Errorf("cache.dir is required for the local backend")
		}
	case BackendGCS:
		if c.Cache.Bucket == "" {
			return fmt.Errorf("cache.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}

	if c.UsesPostgres() && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when a postgres backend is selected")
	}

	switch c.Notify.Backend {
	case BackendMemory, BackendWebhook:
	case BackendPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown notify.backend %q", c.Notify.Backend)
	}
	return nil
}

// UsesPostgres reports whether any backend needs a database pool.
func (c Config) UsesPostgres() bool {
	return c.Subscriptions.Backend == BackendPostgres || c.Cache.Backend == BackendPostgres
}
