package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the effective configuration after merging defaults, config
// file, environment (BANKBOARD_ prefix) and flags.
type Config struct {
	Addr           string  `mapstructure:"addr"`
	Quantile       float64 `mapstructure:"quantile"`
	Strict         bool    `mapstructure:"strict"`
	MaxUploadBytes int64   `mapstructure:"max_upload_bytes"`
	DataFile       string  `mapstructure:"data_file"`
}

// Build loads configuration from cfgFile (or config.yaml in the working
// directory if empty), layered under environment variables and the
// given flags. flags may be nil.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// A .env file is optional.
	_ = gotenv.Load()

	v := viper.New()
	v.SetDefault("addr", "0.0.0.0:3000")
	v.SetDefault("quantile", 0.10)
	v.SetDefault("strict", false)
	v.SetDefault("max_upload_bytes", int64(200<<20))
	v.SetDefault("data_file", "")

	v.SetEnvPrefix("BANKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Quantile < 0 || cfg.Quantile > 1 {
		return nil, fmt.Errorf("quantile must be within [0, 1], got %v", cfg.Quantile)
	}
	return &cfg, nil
}
