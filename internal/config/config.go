package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// ServerConfig defines the daemon's listen addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	MaxWindow   string `mapstructure:"max_window"` // Longest window the API accepts
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt", "redis" or "memory"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	CacheSize    int    `mapstructure:"cache_size"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines session tracking settings
type TrackingConfig struct {
	Timezone string `mapstructure:"timezone"`  // IANA name used for day keys and "today"
	MergeGap string `mapstructure:"merge_gap"` // Max gap between sessions that still merge
}

// UploadConfig defines the remote sink. Uploads are disabled unless both
// Endpoint and Token are set.
type UploadConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Token          string `mapstructure:"token"`
	RequestTimeout string `mapstructure:"request_timeout"`
	RetryInterval  string `mapstructure:"retry_interval"`
}

// Enabled reports whether a remote sink is configured.
func (u UploadConfig) Enabled() bool {
	return strings.TrimSpace(u.Endpoint) != "" && strings.TrimSpace(u.Token) != ""
}

// Location resolves the configured tracking timezone.
func (t TrackingConfig) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.Timezone)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TIMETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 7842)
	v.SetDefault("server.metrics_port", 9092)
	v.SetDefault("server.max_window", "8784h")

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "timetrack:")
	v.SetDefault("storage.redis.cache_size", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.timezone", "UTC")
	v.SetDefault("tracking.merge_gap", "5m")

	// Upload defaults
	v.SetDefault("upload.endpoint", "")
	v.SetDefault("upload.token", "")
	v.SetDefault("upload.request_timeout", "10s")
	v.SetDefault("upload.retry_interval", "5m")
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "timetrack.bolt"
	}
	return filepath.Join(dir, "timetrack", "timetrack.bolt")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort < 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if d, err := time.ParseDuration(cfg.Server.MaxWindow); err != nil || d <= 0 {
		return fmt.Errorf("invalid max_window %q: must be a positive duration", cfg.Server.MaxWindow)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}

	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if _, err := cfg.Tracking.Location(); err != nil {
		return fmt.Errorf("invalid tracking timezone %q: %w", cfg.Tracking.Timezone, err)
	}
	gap, err := time.ParseDuration(cfg.Tracking.MergeGap)
	if err != nil {
		return fmt.Errorf("invalid merge_gap %q: %w", cfg.Tracking.MergeGap, err)
	}
	if gap < 0 {
		return fmt.Errorf("invalid merge_gap %q: must not be negative", cfg.Tracking.MergeGap)
	}

	if cfg.Upload.Enabled() {
		if !strings.HasPrefix(cfg.Upload.Endpoint, "http://") && !strings.HasPrefix(cfg.Upload.Endpoint, "https://") {
			return fmt.Errorf("upload endpoint must be an http(s) URL: %s", cfg.Upload.Endpoint)
		}
		if _, err := time.ParseDuration(cfg.Upload.RequestTimeout); err != nil {
			return fmt.Errorf("invalid upload request_timeout %q: %w", cfg.Upload.RequestTimeout, err)
		}
	}

	return nil
}
