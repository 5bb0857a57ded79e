// Package config loads the YAML configuration shared by the CLI and the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/anomaly"
	"github.com/dvloznov/cashflow-engine/internal/subscription"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Anomaly      AnomalyConfig      `yaml:"anomaly"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Ledger       LedgerConfig       `yaml:"ledger"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	QueueSize    int           `yaml:"queue_size"`
	Workers      int           `yaml:"workers"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	// AuthToken enables bearer-token auth on /api/v1 when set.
	AuthToken string `yaml:"auth_token"`
}

type AnomalyConfig struct {
	Window         int     `yaml:"window"`
	MinAverage     float64 `yaml:"min_average"`
	RatioThreshold float64 `yaml:"ratio_threshold"`
}

type SubscriptionConfig struct {
	MinOccurrences int      `yaml:"min_occurrences"`
	Vocabulary     []string `yaml:"vocabulary"`
	Exclusions     []string `yaml:"exclusions"`
}

// LedgerConfig points at the BigQuery table holding ledger transactions.
type LedgerConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			QueueSize:    100,
			Workers:      5,
			MaxBodyBytes: 10 << 20,
		},
		Anomaly:      AnomalyConfig{Window: 3, MinAverage: 5, RatioThreshold: 1.5},
		Subscription: SubscriptionConfig{MinOccurrences: 3},
		Ledger:       LedgerConfig{Dataset: "finance", Table: "transactions"},
	}
}

// Load reads the file at path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("Load: read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("Load: parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CASHFLOW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CASHFLOW_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CASHFLOW_API_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("CASHFLOW_BQ_PROJECT"); v != "" {
		cfg.Ledger.Project = v
	}
	if v := os.Getenv("CASHFLOW_BQ_DATASET"); v != "" {
		cfg.Ledger.Dataset = v
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not a known level", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.QueueSize < 1 {
		errs = append(errs, errors.New("server.queue_size must be positive"))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, errors.New("server.workers must be positive"))
	}
	if c.Anomaly.Window < 1 {
		errs = append(errs, errors.New("anomaly.window must be at least 1"))
	}
	if c.Anomaly.MinAverage < 0 {
		errs = append(errs, errors.New("anomaly.min_average must not be negative"))
	}
	if c.Anomaly.RatioThreshold <= 0 {
		errs = append(errs, errors.New("anomaly.ratio_threshold must be positive"))
	}
	if c.Subscription.MinOccurrences < 2 {
		errs = append(errs, errors.New("subscription.min_occurrences must be at least 2"))
	}
	return errors.Join(errs...)
}

// LedgerEnabled reports whether transactions should be read from BigQuery.
func (c Config) LedgerEnabled() bool {
	return c.Ledger.Project != ""
}

// AnomalyOptions converts the anomaly section into detector options.
func (c Config) AnomalyOptions() anomaly.Options {
	return anomaly.Options{
		Window:         c.Anomaly.Window,
		MinAverage:     decimal.NewFromFloat(c.Anomaly.MinAverage),
		RatioThreshold: decimal.NewFromFloat(c.Anomaly.RatioThreshold),
	}
}

// SubscriptionOptions converts the subscription section into detector options.
func (c Config) SubscriptionOptions() subscription.Options {
	return subscription.Options{
		MinOccurrences: c.Subscription.MinOccurrences,
		Vocabulary:     c.Subscription.Vocabulary,
		Exclusions:     c.Subscription.Exclusions,
	}
}
