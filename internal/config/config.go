package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/2beens/blogposts/pkg"
)

var StoreDriver = struct {
	Mongo    string
	Postgres string
	Memory   string
}{
	Mongo:    "mongo",
	Postgres: "postgres",
	Memory:   "memory",
}

type Config struct {
	Environment string `toml:"-"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// document store
	StoreDriver    string `toml:"store_driver"`
	MongoURI       string `toml:"mongo_uri"`
	MongoDBName    string `toml:"mongo_db_name"`
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// in-process cache of posts read by id, 0 disables it
	PostCacheSizeMB int `toml:"post_cache_size_mb"`

	// redis, used by the write requests rate limiter
	RedisHost                   string `toml:"redis_host"`
	RedisPort                   string `toml:"redis_port"`
	WriteRateLimitAllowedPerMin int    `toml:"write_rate_limit_per_min"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	AllowedOrigins []string `toml:"allowed_origins"`
}

type Toml struct {
	Development *Config `toml:"development"`
	Production  *Config `toml:"production"`
	DockerDev   *Config `toml:"dockerdev"`
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	case "ddev", "dockerdev":
		cfg = t.DockerDev
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", env)
	}
	cfg.Environment = strings.ToLower(env)
	return cfg, nil
}

func Load(env, path string) (*Config, error) {
	exists, err := pkg.PathExists(path, false)
	if err != nil {
		return nil, fmt.Errorf("stat config [%s]: %w", path, err)
	}
	if !exists {
		return nil, fmt.Errorf("config file [%s] not found", path)
	}

	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode toml config [%s]: %w", path, err)
	}
	return t.resolve(env)
}

func Parse(env, data string) (*Config, error) {
	var t Toml
	if _, err := toml.Decode(data, &t); err != nil {
		return nil, fmt.Errorf("decode toml config: %w", err)
	}
	return t.resolve(env)
}

func (t *Toml) resolve(env string) (*Config, error) {
	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.StoreDriver == "" {
		c.StoreDriver = StoreDriver.Mongo
	}
	if c.MongoDBName == "" {
		c.MongoDBName = "blog"
	}
	if c.PostgresPort == "" {
		c.PostgresPort = "5432"
	}
	if c.RedisPort == "" {
		c.RedisPort = "6379"
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriver.Mongo:
		if c.MongoURI == "" {
			return fmt.Errorf("store driver %s: mongo_uri not set", c.StoreDriver)
		}
	case StoreDriver.Postgres:
		if c.PostgresHost == "" || c.PostgresDBName == "" {
			return fmt.Errorf("store driver %s: postgres_host and postgres_db_name required", c.StoreDriver)
		}
	case StoreDriver.Memory:
	default:
		return fmt.Errorf("unknown store driver: %s", c.StoreDriver)
	}

	if c.PostCacheSizeMB < 0 {
		return fmt.Errorf("invalid post_cache_size_mb: %d", c.PostCacheSizeMB)
	}

	if c.WriteRateLimitAllowedPerMin < 0 {
		return fmt.Errorf("invalid write_rate_limit_per_min: %d", c.WriteRateLimitAllowedPerMin)
	}
	if c.WriteRateLimitAllowedPerMin > 0 && c.RedisHost == "" {
		return fmt.Errorf("write rate limit set, but redis_host empty")
	}

	return nil
}

// RateLimitEnabled reports whether write requests go through the rate limiter
func (c *Config) RateLimitEnabled() bool {
	return c.WriteRateLimitAllowedPerMin > 0
}
