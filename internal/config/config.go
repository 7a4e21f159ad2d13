// Package config loads the client configuration from a YAML file with
// BOARDGAME_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BOARDGAME"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Client   ClientConfig   `mapstructure:"client"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig locates the zone service.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// Transport is "grpc" or "websocket".
	Transport      string        `mapstructure:"transport"`
	Insecure       bool          `mapstructure:"insecure"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	KeepaliveTime  time.Duration `mapstructure:"keepalive_time"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

type ClientConfig struct {
	KeyPath    string        `mapstructure:"key_path"`
	Currency   string        `mapstructure:"currency"`
	BankerName string        `mapstructure:"banker_name"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkersConfig sizes the pool that runs commands and persistence.
type WorkersConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "localhost:7443")
	v.SetDefault("server.transport", "grpc")
	v.SetDefault("server.insecure", false)
	v.SetDefault("server.dial_timeout", 10*time.Second)
	v.SetDefault("server.command_timeout", 30*time.Second)
	v.SetDefault("server.keepalive_time", 30*time.Second)
	v.SetDefault("server.retry_delay", 5*time.Second)

	v.SetDefault("client.key_path", "boardgame/client.pem")
	v.SetDefault("client.currency", "")
	v.SetDefault("client.banker_name", "Banker")
	v.SetDefault("client.token_ttl", 5*time.Minute)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "boardgame/games.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("workers.size", 4)
	v.SetDefault("workers.queue_size", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9464")
}

// Load reads path, if it exists, over the defaults. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "grpc", "websocket":
	default:
		return fmt.Errorf("server.transport must be grpc or websocket, got %q", c.Server.Transport)
	}
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if c.Server.CommandTimeout <= 0 {
		return errors.New("server.command_timeout must be positive")
	}
	if c.Client.KeyPath == "" {
		return errors.New("client.key_path is required")
	}
	if c.Client.TokenTTL <= 0 {
		return errors.New("client.token_ttl must be positive")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Workers.Size < 1 {
		return errors.New("workers.size must be at least 1")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.New("metrics.address is required when metrics are enabled")
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
