// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob in the configuration surface: HTTP server, auth,
// worker capacity, per-user resource limits, dispatch/cleanup cadence, the
// work-queue transport, the KV store, and the durable store.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	UserLimit UserLimitConfig `mapstructure:"user_resource_limit"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Transport TransportConfig `mapstructure:"transport"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// WorkerConfig describes cluster-wide worker capacity, per §6's
// crawler.worker.* configuration surface.
type WorkerConfig struct {
	TotalInstances        int `mapstructure:"total_instances"`
	MaxThreadsPerInstance int `mapstructure:"max_threads_per_instance"`
}

// UserLimitConfig describes per-user sliding-window quotas, per §6's
// crawler.user-resource-limit.* configuration surface.
type UserLimitConfig struct {
	TimeWindowSeconds   int `mapstructure:"time_window_seconds"`
	MaxThreadsPerWindow int `mapstructure:"max_threads_per_window"`
	MaxJobsPerWindow    int `mapstructure:"max_jobs_per_window"`
}

// Window returns the configured sliding-window duration.
func (u UserLimitConfig) Window() time.Duration {
	return time.Duration(u.TimeWindowSeconds) * time.Second
}

// DispatchConfig holds the dispatch-tick and stats-cleanup cadences.
type DispatchConfig struct {
	TickIntervalMs         int `mapstructure:"tick_interval_ms"`
	StatsCleanupIntervalMs int `mapstructure:"stats_cleanup_interval_ms"`
}

// TickInterval returns the dispatch loop's sleep duration between ticks.
func (d DispatchConfig) TickInterval() time.Duration {
	return time.Duration(d.TickIntervalMs) * time.Millisecond
}

// StatsCleanupInterval returns the resource-ledger reconciler's cadence.
func (d DispatchConfig) StatsCleanupInterval() time.Duration {
	return time.Duration(d.StatsCleanupIntervalMs) * time.Millisecond
}

// TransportConfig configures the work-queue transport.
type TransportConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicName      string `mapstructure:"topic_name"`
	SubscriptionID string `mapstructure:"subscription_id"`
	Partitions     int    `mapstructure:"partitions"`
}

// RedisConfig configures the KV store backing the live status cache and the
// resource ledger.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the relational durable job store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

	v.SetDefault("worker.total_instances", 1)
	v.SetDefault("worker.max_threads_per_instance", 10)

	v.SetDefault("user_resource_limit.time_window_seconds", 3600)
	v.SetDefault("user_resource_limit.max_threads_per_window", 50)
	v.SetDefault("user_resource_limit.max_jobs_per_window", 10)

	v.SetDefault("dispatch.tick_interval_ms", 2000)
	v.SetDefault("dispatch.stats_cleanup_interval_ms", 300000)

	v.SetDefault("transport.topic_name", "crawler-jobs")
	v.SetDefault("transport.subscription_id", "crawler-jobs-sub")
	v.SetDefault("transport.partitions", 3)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.TotalInstances <= 0 {
		return fmt.Errorf("worker.total_instances must be > 0")
	}
	if c.Worker.MaxThreadsPerInstance <= 0 {
		return fmt.Errorf("worker.max_threads_per_instance must be > 0")
	}
	if c.UserLimit.TimeWindowSeconds <= 0 {
		return fmt.Errorf("user_resource_limit.time_window_seconds must be > 0")
	}
	if c.UserLimit.MaxThreadsPerWindow <= 0 {
		return fmt.Errorf("user_resource_limit.max_threads_per_window must be > 0")
	}
	if c.UserLimit.MaxJobsPerWindow <= 0 {
		return fmt.Errorf("user_resource_limit.max_jobs_per_window must be > 0")
	}
	if c.Dispatch.TickIntervalMs <= 0 {
		return fmt.Errorf("dispatch.tick_interval_ms must be > 0")
	}
	if c.Dispatch.StatsCleanupIntervalMs <= 0 {
		return fmt.Errorf("dispatch.stats_cleanup_interval_ms must be > 0")
	}
	if c.Transport.Partitions <= 0 {
		return fmt.Errorf("transport.partitions must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}
