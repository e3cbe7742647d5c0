package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/leonardcser/webcache-mcp/internal/logger"
)

const (
	AppName   = "webcache-mcp"
	EnvPrefix = "WEBCACHE"
)

// Store backends accepted by store.backend.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendSocket = "socket"
)

// Config is read by viper from an optional YAML file, then WEBCACHE_* env vars.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Instrument InstrumentConfig `mapstructure:"instrument"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type StoreConfig struct {
	Backend    string        `mapstructure:"backend"`     // memory, bolt, redis, socket
	Path       string        `mapstructure:"path"`        // bbolt file
	Socket     string        `mapstructure:"socket"`      // cache daemon socket
	Bucket     string        `mapstructure:"bucket"`      // bbolt bucket
	DefaultTTL time.Duration `mapstructure:"default_ttl"` // bolt only; 0 means no expiry
	Redis      RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CounterTTL      time.Duration `mapstructure:"counter_ttl"`
	PrefetchWorkers int           `mapstructure:"prefetch_workers"`
}

type InstrumentConfig struct {
	MaxRecordLen int `mapstructure:"max_record_len"`
}

type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the /metrics listener
}

// DefaultDir is where the socket, database and config file live by default.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", AppName)
}

func setDefaults(v *viper.Viper) {
	dir := DefaultDir()
	v.SetDefault("store.backend", BackendSocket)
	v.SetDefault("store.path", filepath.Join(dir, "cache.bbolt"))
	v.SetDefault("store.socket", filepath.Join(dir, "cache.sock"))
	v.SetDefault("store.bucket", "web")
	v.SetDefault("store.default_ttl", time.Duration(0))
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "")

	v.SetDefault("cache.ttl", 10*time.Second)
	v.SetDefault("cache.counter_ttl", time.Duration(0))
	v.SetDefault("cache.prefetch_workers", 4)

	v.SetDefault("instrument.max_record_len", 512)

	v.SetDefault("log.path", logger.PathFromEnv())
	v.SetDefault("log.level", "info")

	v.SetDefault("metrics.addr", "")
}

// Load reads configuration from configPath, or from config.yaml in the
// working directory or DefaultDir when configPath is empty. A missing
// config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendBolt, BackendRedis, BackendSocket:
	default:
		return fmt.Errorf("invalid store.backend %q", c.Store.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.CounterTTL < 0 {
		return fmt.Errorf("cache.counter_ttl must not be negative")
	}
	if c.Cache.PrefetchWorkers < 1 {
		c.Cache.PrefetchWorkers = 1
	}
	return nil
}
