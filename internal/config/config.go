package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Loader reads configuration from a file, the environment and an optional
// .env file, and can watch the file for changes.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader. An empty path searches the default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pii-sentinel/")
	v.AddConfigPath("$HOME/.pii-sentinel/")

	// Environment variable overrides
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	setDefaults(v, GetDefaults())

	return &Loader{v: v, path: configPath}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads the configuration. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// ConfigFile returns the file in use, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls callback with every valid configuration written to the file.
// Invalid edits are logged and ignored.
func (l *Loader) Watch(callback func(*Config), logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			logger.Warn("Ignoring invalid configuration change",
				zap.String("file", e.Name),
				zap.Error(err))
			return
		}
		logger.Info("Configuration reloaded", zap.String("file", e.Name))
		callback(cfg)
	})
	l.v.WatchConfig()
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
	)
}

// setDefaults registers scalar defaults so environment overrides reach
// Unmarshal even when the key is absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("pipeline.decode_responses", d.Pipeline.DecodeResponses)
	v.SetDefault("aliases.generate_variations", d.Aliases.GenerateVariations)
	v.SetDefault("custom_rules.enabled", d.CustomRules.Enabled)

	v.SetDefault("vault.enabled", d.Vault.Enabled)
	v.SetDefault("vault.mode", string(d.Vault.Mode))
	v.SetDefault("vault.redaction_mode", string(d.Vault.RedactionMode))
	v.SetDefault("vault.include_generic_detection", d.Vault.IncludeGenericDetection)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.snapshot_key", d.Redis.SnapshotKey)
	v.SetDefault("redis.update_channel", d.Redis.UpdateChannel)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.retention", d.Database.Retention)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.path", d.WebSocket.Path)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)
	v.SetDefault("websocket.status_interval", d.WebSocket.StatusInterval)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("activity.max_entries", d.Activity.MaxEntries)
	v.SetDefault("batch.workers", d.Batch.Workers)
	v.SetDefault("batch.queue_size", d.Batch.QueueSize)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	switch config.Vault.Mode {
	case "", keyvault.ModeAutoRedact, keyvault.ModeWarnFirst, keyvault.ModeLogOnly:
	default:
		return fmt.Errorf("invalid vault mode: %s (must be auto-redact, warn-first, or log-only)", config.Vault.Mode)
	}

	switch config.Vault.RedactionMode {
	case "", keyvault.RedactFull, keyvault.RedactPartial, keyvault.RedactPlaceholder:
	default:
		return fmt.Errorf("invalid vault redaction mode: %s (must be full, partial, or placeholder)", config.Vault.RedactionMode)
	}

	for i, m := range config.Aliases.Mappings {
		if strings.TrimSpace(m.Real) == "" || strings.TrimSpace(m.Alias) == "" {
			return fmt.Errorf("alias mapping %d: real and alias must both be set", i)
		}
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %v req/s, burst %d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	if config.Redis.Enabled && config.Redis.SnapshotKey == "" {
		return fmt.Errorf("redis snapshot_key is required when redis is enabled")
	}

	if config.Database.Enabled && config.Database.URL == "" {
		return fmt.Errorf("database url is required when database is enabled")
	}

	return nil
}
