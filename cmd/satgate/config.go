package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the root configuration for the satgate server.
type Config struct {
	Env    string       `mapstructure:"env"`
	Server ServerConfig `mapstructure:"server"`

	Content   ContentConfig   `mapstructure:"content"`
	LND       LNDConfig       `mapstructure:"lnd"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type ContentConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=fs s3"`
	Root    string `mapstructure:"root"` // fs backend
	S3      struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Bucket    string `mapstructure:"bucket"`
		Prefix    string `mapstructure:"prefix"`
		UseSSL    bool   `mapstructure:"use_ssl"`
	} `mapstructure:"s3"`
}

type LNDConfig struct {
	URL          string `mapstructure:"url"`
	MacaroonPath string `mapstructure:"macaroon_path"`
	TLSCertPath  string `mapstructure:"cert_path"`
}

type PaymentsConfig struct {
	// Mock runs an in-process fake backend that auto-settles invoices.
	// For development only.
	Mock             bool          `mapstructure:"mock"`
	InvoiceExpiry    time.Duration `mapstructure:"invoice_expiry" validate:"min=0"`
	SettledRetention time.Duration `mapstructure:"settled_retention" validate:"min=0"`
	MaxOpenPerClient int           `mapstructure:"max_open_per_client" validate:"min=0"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

func setDefaults() {
	viper.SetDefault("env", "dev")
	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("content.backend", "fs")
	viper.SetDefault("content.root", ".")
	viper.SetDefault("content.s3.use_ssl", true)

	viper.SetDefault("payments.mock", false)
	viper.SetDefault("payments.invoice_expiry", time.Hour)
	viper.SetDefault("payments.settled_retention", 24*time.Hour)
	viper.SetDefault("payments.max_open_per_client", 16)

	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.requests_per_second", 20)
	viper.SetDefault("ratelimit.burst", 40)

	viper.SetDefault("log.level", "")
}

func readConfig(cmd *cobra.Command) {
	setDefaults()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		slog.Warn("failed to bind flags", "err", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("satgate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("SATGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "err", err)
		}
	}
}

// loadConfig unmarshals and validates the merged configuration.
func loadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Content.Backend == "s3" && cfg.Content.S3.Bucket == "" {
		return nil, fmt.Errorf("content.s3.bucket is required for the s3 backend")
	}
	return &cfg, nil
}
