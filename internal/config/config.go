// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config holds configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	RedisURL     string `mapstructure:"REDIS_URL"`
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	Env          string `mapstructure:"APP_ENV"`
}

// LoadConfig loads configuration from config.yml and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The config file is optional; env vars and defaults cover everything.
	_ = viper.ReadInConfig()

	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("DATABASE_PATH", "forum.db")
	viper.SetDefault("STORE_BACKEND", "sqlite")
	viper.SetDefault("APP_ENV", "development")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures required configuration values are present and sane.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreBackend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want sqlite, redis or memory)", c.StoreBackend)
	}
	if c.StoreBackend == "redis" && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when STORE_BACKEND is redis")
	}
	if c.StoreBackend == "sqlite" && c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required when STORE_BACKEND is sqlite")
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
	}
	return nil
}
