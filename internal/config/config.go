package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RPCEndpoint string `mapstructure:"rpc_endpoint" validate:"required,url"`
	ProgramID   string `mapstructure:"program_id" validate:"required"`

	Port int `mapstructure:"port" validate:"gt=0,lte=65535"`

	// Reconciliation schedule, in seconds.
	PollInterval int     `mapstructure:"poll_interval" validate:"gt=0"`
	PollJitter   float64 `mapstructure:"poll_jitter" validate:"gte=0,lte=1"`
	FetchTimeout int     `mapstructure:"fetch_timeout" validate:"gt=0"`
	ApplyTimeout int     `mapstructure:"apply_timeout" validate:"gt=0"`

	MetricsAuthToken string `mapstructure:"metrics_auth_token"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
