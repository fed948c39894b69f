package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the complete daemon configuration.
type Config struct {
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// BridgeConfig defines the extension-facing HTTP bridge.
type BridgeConfig struct {
	BindAddress       string `mapstructure:"bind_address"`
	Port              int    `mapstructure:"port"`
	HeartbeatInterval string `mapstructure:"heartbeat_interval"`
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// StorageConfig defines the storage backend settings.
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings.
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
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines tick and flush cadence and the accrual gate.
type TrackingConfig struct {
	TickInterval    string `mapstructure:"tick_interval"`
	FlushInterval   string `mapstructure:"flush_interval"`   // flush deadline while tracking
	PeriodicFlush   string `mapstructure:"periodic_flush"`   // unconditional flush
	Gate            string `mapstructure:"gate"`             // focus, always, or audible
	DomainCacheSize int    `mapstructure:"domain_cache_size"`
}

// NotifyConfig defines the accountability email channel. Credentials
// live here so they are never stored alongside user settings.
type NotifyConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ServiceID  string `mapstructure:"service_id"`
	TemplateID string `mapstructure:"template_id"`
	PublicKey  string `mapstructure:"public_key"`
	Timeout    string `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TABWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if os.IsNotExist(err) {
				// Missing file is fine: defaults plus environment apply.
			} else {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Bridge defaults: localhost only, the extension is the one client.
	v.SetDefault("bridge.bind_address", "127.0.0.1")
	v.SetDefault("bridge.port", 7732)
	v.SetDefault("bridge.heartbeat_interval", "15s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9732)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", defaultStatePath())
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.tick_interval", "1s")
	v.SetDefault("tracking.flush_interval", "10s")
	v.SetDefault("tracking.periodic_flush", "60s")
	v.SetDefault("tracking.gate", "focus")
	v.SetDefault("tracking.domain_cache_size", 512)

	// Notify defaults: endpoint only, credentials must be provided.
	v.SetDefault("notify.endpoint", "https://api.emailjs.com/api/v1.0/email/send")
	v.SetDefault("notify.timeout", "10s")
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tabwarden.bolt"
	}
	return filepath.Join(home, ".local", "share", "tabwarden", "tabwarden.bolt")
}

func validate(cfg *Config) error {
	if cfg.Bridge.Port <= 0 || cfg.Bridge.Port > 65535 {
		return fmt.Errorf("invalid bridge port: %d", cfg.Bridge.Port)
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	switch cfg.Storage.Type {
	case "", "bolt":
		cfg.Storage.Type = "bolt"
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %q (must be bolt or redis)", cfg.Storage.Type)
	}

	switch cfg.Tracking.Gate {
	case "", "focus", "always", "audible":
	default:
		return fmt.Errorf("unknown tracking gate: %q (must be focus, always, or audible)", cfg.Tracking.Gate)
	}

	return nil
}
