package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	GC       GCConfig       `mapstructure:"gc"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds the network settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// LimitsConfig bounds a single decoded protocol frame
type LimitsConfig struct {
	MaxBulkSize  int `mapstructure:"max_bulk_size"`  // largest bulk string payload in bytes
	MaxArrayLen  int `mapstructure:"max_array_len"`  // largest multibulk element count
	MaxInlineLen int `mapstructure:"max_inline_len"` // longest inline request line in bytes
}

// MemoryConfig defines the memory ceiling and the eviction behavior at it
type MemoryConfig struct {
	MaxMemory int64  `mapstructure:"max_memory"` // bytes, 0 = unlimited
	Policy    string `mapstructure:"policy"`     // noeviction, allkeys-random, allkeys-lru, volatile-random, volatile-lru
	Samples   int    `mapstructure:"samples"`    // LRU sample size
}

// GCConfig defines the parameters for the background active expiration
type GCConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`    // how often to run the sweep
	SampleSize int           `mapstructure:"sample_size"` // heap entries popped per sweep batch
}

// SnapshotConfig defines the point-in-time persistence settings
type SnapshotConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Filename string `mapstructure:"filename"`
	Interval string `mapstructure:"interval"` // autosave period, empty = manual SAVE/BGSAVE only
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// MetricsConfig gates the Prometheus exposition endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads the configuration from a file and overrides it with environment variables
func Load(path string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("FIREFLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates viper with fallback values if they are not provided via file or ENV
func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "6399")

	// Protocol limits
	viper.SetDefault("limits.max_bulk_size", 64*1024)
	viper.SetDefault("limits.max_array_len", 8192)
	viper.SetDefault("limits.max_inline_len", 8*1024)

	// Memory
	viper.SetDefault("memory.max_memory", 0)
	viper.SetDefault("memory.policy", "noeviction")
	viper.SetDefault("memory.samples", 5)

	// Active expiry
	viper.SetDefault("gc.enabled", true)
	viper.SetDefault("gc.interval", "100ms")
	viper.SetDefault("gc.sample_size", 20)

	// Snapshot persistence
	viper.SetDefault("snapshot.enabled", false)
	viper.SetDefault("snapshot.filename", "dump.fdb")
	viper.SetDefault("snapshot.interval", "")

	// Logger
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	// Metrics
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.addr", ":9121")
}
