package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port        int
		CORSOrigins []string
	}
	Database struct {
		Path string
	}
	Scheduler struct {
		Interval time.Duration
		Workers  int
	}
	Delivery struct {
		RecipientTimeout time.Duration
	}
	SMTP struct {
		Host     string
		Port     int
		From     string
		Password string
	}
	SMS struct {
		GatewayDomain string
		APIKey        string
		SourceNumber  string
	}
	RateLimit struct {
		Window   time.Duration
		Requests int
	}
}

// Load reads config.yaml (optional) with JOURNALPOST_* environment overrides
// on top of built-in defaults.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("journalpost")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.corsorigins", []string{"*"})
	viper.SetDefault("database.path", "data/journalpost.db")
	viper.SetDefault("scheduler.interval", 5*time.Second)
	viper.SetDefault("scheduler.workers", 4)
	viper.SetDefault("delivery.recipienttimeout", 30*time.Second)
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("ratelimit.window", time.Minute)
	viper.SetDefault("ratelimit.requests", 120)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
