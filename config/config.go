package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"rocengine/internal/indicator"
)

// Config holds all service configuration. Values are resolved in order:
// struct defaults, then the optional YAML file, then environment variables.
type Config struct {
	ServiceName string `yaml:"service_name" default:"rocengine" validate:"required"`
	LogLevel    string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`

	HTTP    HTTPConfig    `yaml:"http"`
	Feed    FeedConfig    `yaml:"feed"`
	Redis   RedisConfig   `yaml:"redis"`
	Publish PublishConfig `yaml:"publish"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Warmup  WarmupConfig  `yaml:"warmup"`

	// Indicators is a "TYPE:PERIOD,..." list, e.g. "ROC:10,ROCR:10,ROC100:20".
	Indicators string `yaml:"indicators" default:"ROC:10,ROCP:10,ROCR:10,ROC100:10"`

	// Parsed is filled by Load from Indicators.
	Parsed []indicator.Config `yaml:"-"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" default:":8090" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s" validate:"gt=0"`
}

// FeedConfig selects where observations come from.
type FeedConfig struct {
	Source        string        `yaml:"source" default:"redis" validate:"oneof=redis ws"`
	WSURL         string        `yaml:"ws_url" validate:"required_if=Source ws"`
	Streams       []string      `yaml:"streams" default:"[\"obs:stream\"]" validate:"required_if=Source redis"`
	ConsumerGroup string        `yaml:"consumer_group" default:"rocengine" validate:"required"`
	ConsumerName  string        `yaml:"consumer_name" default:"rocengine-1" validate:"required"`
	BatchSize     int64         `yaml:"batch_size" default:"100" validate:"gte=1"`
	Block         time.Duration `yaml:"block" default:"2s" validate:"gt=0"`
	BufferSize    int           `yaml:"buffer_size" default:"10000" validate:"gte=1"`

	// Stale pending entries from dead consumers are reclaimed every
	// PELInterval once idle for PELMinIdle.
	PELInterval time.Duration `yaml:"pel_interval" default:"30s" validate:"gt=0"`
	PELMinIdle  time.Duration `yaml:"pel_min_idle" default:"60s" validate:"gt=0"`

	// ConfigChannel is the Pub/Sub channel carrying "TYPE:PERIOD,..." reloads.
	// Empty disables it.
	ConfigChannel string `yaml:"config_channel" default:"config:roc"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// PublishConfig tunes the Redis result writer and its circuit breaker.
type PublishConfig struct {
	StreamMaxLen     int64         `yaml:"stream_max_len" default:"10000" validate:"gte=1"`
	LatestTTL        time.Duration `yaml:"latest_ttl" default:"30m" validate:"gt=0"`
	FlushInterval    time.Duration `yaml:"flush_interval" default:"100ms" validate:"gt=0"`
	BatchSize        int           `yaml:"batch_size" default:"200" validate:"gte=1"`
	FailureThreshold int           `yaml:"failure_threshold" default:"5" validate:"gte=1"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" default:"10s" validate:"gt=0"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" default:"data/observations.db"`
	// Record archives every live observation for later warm-up and backtests.
	Record bool `yaml:"record"`
}

type WarmupConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	Lookback time.Duration `yaml:"lookback" default:"24h" validate:"gte=0"`
}

var validate = validator.New()

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate runs struct validation and parses the indicator list into Parsed.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if (c.Warmup.Enabled || c.SQLite.Record) && c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required when warmup or recording is enabled")
	}
	parsed, err := indicator.ParseSpecs(c.Indicators)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	c.Parsed = parsed
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ServiceName, "ROC_SERVICE_NAME")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.HTTP.Addr, "ROC_HTTP_ADDR")
	setString(&c.Feed.Source, "FEED_SOURCE")
	setString(&c.Feed.WSURL, "FEED_WS_URL")
	if v := os.Getenv("FEED_STREAMS"); v != "" {
		c.Feed.Streams = splitList(v)
	}
	setString(&c.Feed.ConsumerGroup, "CONSUMER_GROUP")
	setString(&c.Feed.ConsumerName, "CONSUMER_NAME")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = n
	}
	setString(&c.SQLite.Path, "SQLITE_PATH")
	if v := os.Getenv("WARMUP_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WARMUP_ENABLED: %w", err)
		}
		c.Warmup.Enabled = b
	}
	if v := os.Getenv("SQLITE_RECORD"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SQLITE_RECORD: %w", err)
		}
		c.SQLite.Record = b
	}
	setString(&c.Indicators, "INDICATOR_CONFIGS")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
