package loader

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all loader configuration.
type Config struct {
	Cache         CacheConfig         `mapstructure:"cache"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Preload       PreloadConfig       `mapstructure:"preload"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// CacheConfig bounds the in-memory resource cache.
type CacheConfig struct {
	// MaxBytes is the global byte budget across all resource kinds.
	MaxBytes int64 `mapstructure:"max_bytes"`
	// MaxAge is the TTL after which a cached entry is treated as a miss.
	MaxAge time.Duration `mapstructure:"max_age"`
	// SweepInterval is how often expired entries are reclaimed in the
	// background, independent of read activity.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// HTTPConfig configures the default transport.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// PreloadConfig bounds manifest preloading.
type PreloadConfig struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig loads configuration from file and environment variables. A
// missing config file is not fatal; defaults and env vars apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("loader")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoadConfig loads configuration or panics.
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// DefaultConfig returns the built-in defaults without touching the
// filesystem.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxBytes:      10 << 20,
			MaxAge:        5 * time.Minute,
			SweepInterval: 2 * time.Minute,
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Preload: PreloadConfig{
			Workers: 4,
			Timeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "json"},
		},
	}
}

func setDefaults(v *viper.Viper) {
	// Cache defaults
	v.SetDefault("cache.max_bytes", 10<<20) // 10 MiB
	v.SetDefault("cache.max_age", "5m")
	v.SetDefault("cache.sweep_interval", "2m")

	// HTTP defaults
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", "")

	// Preload defaults
	v.SetDefault("preload.workers", 4)
	v.SetDefault("preload.timeout", "30s")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("cache max_bytes must be > 0")
	}
	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("cache max_age must be > 0")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http timeout must be >= 0")
	}
	if c.Preload.Workers <= 0 {
		return fmt.Errorf("preload workers must be > 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	return nil
}
