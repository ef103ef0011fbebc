package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment   string        `mapstructure:"environment"`
	ServerAddress string        `mapstructure:"server.address"`
	ServerTimeout time.Duration `mapstructure:"server.timeout"`
	LogLevel      string        `mapstructure:"logging.level"`
	LogFormat     string        `mapstructure:"logging.format"`
	DB            DatabaseConfig
	Sync          SyncConfig
}

// DatabaseConfig holds the local store configuration
type DatabaseConfig struct {
	Path        string        `mapstructure:"database.path"`
	BusyTimeout time.Duration `mapstructure:"database.busy_timeout"`
}

// SyncConfig holds the remote synchronization configuration
type SyncConfig struct {
	BaseURL      string        `mapstructure:"sync.base_url"`
	APIToken     string        `mapstructure:"sync.api_token"`
	Interval     time.Duration `mapstructure:"sync.interval"`
	BatchSize    int           `mapstructure:"sync.batch_size"`
	PullPageSize int           `mapstructure:"sync.pull_page_size"`
	MaxRetries   int           `mapstructure:"sync.max_retries"`
	HTTPTimeout  time.Duration `mapstructure:"sync.http_timeout"`
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AddConfigPath(path)
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine - ENV vars and defaults still apply
	}

	// Enable environment variables to override config
	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Core settings
	v.SetDefault("environment", "development")
	v.SetDefault("server.address", "127.0.0.1:8090")
	v.SetDefault("server.timeout", "30s")

	// Local store settings
	v.SetDefault("database.path", "agent.db")
	v.SetDefault("database.busy_timeout", "5s")

	// Sync settings
	v.SetDefault("sync.base_url", "http://localhost:8080")
	v.SetDefault("sync.api_token", "")
	v.SetDefault("sync.interval", "60s")
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.pull_page_size", 200)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.http_timeout", "30s")

	// Logging settings
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
