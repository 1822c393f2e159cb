package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/mattias800/snacka-sub010/internal/adapters/directory"
)

type Config struct {
	Mode      string        `mapstructure:"mode"`
	Port      int           `mapstructure:"port"`
	Secret    string        `mapstructure:"secret"`
	PublicURL string        `mapstructure:"public_url"`
	TunnelTTL time.Duration `mapstructure:"tunnel_ttl"`

	// Directory is the static membership seed standing in for the
	// CRUD service.
	Directory directory.Seed `mapstructure:"directory"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "dev-secret-change-me")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("tunnel_ttl", "2m")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}
