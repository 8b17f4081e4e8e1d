// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/BD4L/breachwatch/internal/adapter"
	"github.com/BD4L/breachwatch/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Ingest    IngestConfig     `mapstructure:"ingest"`
	RateLimit RateLimitConfig  `mapstructure:"rate_limit"`
	DB        DBConfig         `mapstructure:"db"`
	Archive   ArchiveConfig    `mapstructure:"archive"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Sources   []adapter.Config `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HTTPConfig configures document fetch retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffStepMs  int    `mapstructure:"backoff_step_ms"`
	UserAgent      string `mapstructure:"user_agent"`
}

// IngestConfig governs ingestion run behavior.
type IngestConfig struct {
	Tier            string `mapstructure:"tier"`
	Workers         int    `mapstructure:"workers"`
	RecencyDays     int    `mapstructure:"recency_days"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
}

// RateLimitConfig sets the per-source politeness delay window.
type RateLimitConfig struct {
	MinDelayMs int `mapstructure:"min_delay_ms"`
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// ArchiveConfig selects the document archive backend.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"` // "none", "local", or "gcs"
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project disables dispatch.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BREACHWATCH")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_step_ms", 500)
	v.SetDefault("http.user_agent", "breachwatch/0.1")
	v.SetDefault("ingest.tier", string(pipeline.TierFull))
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.recency_days", 0)
	v.SetDefault("ingest.interval_minutes", 60)
	v.SetDefault("rate_limit.min_delay_ms", 1000)
	v.SetDefault("rate_limit.max_delay_ms", 3000)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "documents")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	switch pipeline.Tier(c.Ingest.Tier) {
	case pipeline.TierBasic, pipeline.TierEnhanced, pipeline.TierFull:
	default:
		return fmt.Errorf("ingest.tier must be one of basic, enhanced, full")
	}
	if c.RateLimit.MinDelayMs <= 0 || c.RateLimit.MaxDelayMs < c.RateLimit.MinDelayMs {
		return fmt.Errorf("rate_limit delays must satisfy 0 < min <= max")
	}
	switch c.Archive.Backend {
	case "", "none", "local", "gcs":
	default:
		return fmt.Errorf("archive.backend must be one of none, local, gcs")
	}
	if c.Archive.Backend == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
	}
	if c.Archive.Backend == "local" && c.Archive.LocalDir == "" {
		return fmt.Errorf("archive.local_dir must be set when archive.backend is local")
	}
	seen := map[string]bool{}
	for _, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return err
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}

// Tier returns the configured processing tier.
func (c Config) Tier() pipeline.Tier {
	return pipeline.Tier(c.Ingest.Tier)
}

// HTTPTimeout converts the fetch timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MinDelay is the lower politeness bound between document fetches.
func (c Config) MinDelay() time.Duration {
	return time.Duration(c.RateLimit.MinDelayMs) * time.Millisecond
}

// MaxDelay is the upper politeness bound between document fetches.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.RateLimit.MaxDelayMs) * time.Millisecond
}

// RecencyCutoff resolves the recency window against now. Zero days disables
// the filter.
func (c Config) RecencyCutoff(now time.Time) time.Time {
	if c.Ingest.RecencyDays <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -c.Ingest.RecencyDays)
}

// Interval is the serve-mode ingestion period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Ingest.IntervalMinutes) * time.Minute
}

// ConnLifetime converts the pool lifetime config into a duration.
func (c DBConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMinute) * time.Minute
}
