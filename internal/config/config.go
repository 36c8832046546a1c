// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes the streaming feed the ingester connects to.
type Exchange struct {
	Name    string   `yaml:"name"`
	WSURL   string   `yaml:"ws_url"`
	Symbols []string `yaml:"symbols"`
}

// Store configures tick persistence and retention.
type Store struct {
	// DSN is a postgres-wire connection string (Postgres or QuestDB).
	// Empty selects the in-memory store.
	DSN               string  `yaml:"dsn"`
	RetentionHours    float64 `yaml:"retention_hours"`
	PruneIntervalSecs int     `yaml:"prune_interval_secs"`
}

// Analytics groups the tunable knobs of the pair-signal computation.
type Analytics struct {
	BarIntervalSecs int     `yaml:"bar_interval_secs"`
	RollingWindow   int     `yaml:"rolling_window"`
	LongWindow      int     `yaml:"long_window"`
	ZScoreThreshold float64 `yaml:"zscore_threshold"`
	LookbackSecs    int     `yaml:"lookback_secs"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Exchange  Exchange  `yaml:"exchange"`
	Store     Store     `yaml:"store"`
	Analytics Analytics `yaml:"analytics"`
}

// Load reads a YAML file from disk and hydrates a Config struct with defaults applied.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Default returns the configuration the monitor ships with.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "pairwatch"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9109"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = "binance"
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = "wss://fstream.binance.com"
	}
	if len(c.Exchange.Symbols) == 0 {
		c.Exchange.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if c.Store.RetentionHours <= 0 {
		c.Store.RetentionHours = 24
	}
	if c.Store.PruneIntervalSecs <= 0 {
		c.Store.PruneIntervalSecs = 3600
	}
	if c.Analytics.BarIntervalSecs <= 0 {
		c.Analytics.BarIntervalSecs = 60
	}
	if c.Analytics.RollingWindow <= 0 {
		c.Analytics.RollingWindow = 20
	}
	if c.Analytics.LongWindow <= 0 {
		c.Analytics.LongWindow = 60
	}
	if c.Analytics.ZScoreThreshold <= 0 {
		c.Analytics.ZScoreThreshold = 2.0
	}
	if c.Analytics.LookbackSecs <= 0 {
		c.Analytics.LookbackSecs = 3600
	}
}

// Retention returns the configured max tick age as a duration.
func (s Store) Retention() time.Duration {
	return time.Duration(s.RetentionHours * float64(time.Hour))
}

// PruneInterval returns the cadence of the retention sweep.
func (s Store) PruneInterval() time.Duration {
	return time.Duration(s.PruneIntervalSecs) * time.Second
}

// BarInterval returns the resampling bucket width.
func (a Analytics) BarInterval() time.Duration {
	return time.Duration(a.BarIntervalSecs) * time.Second
}

// Lookback returns how much recent history a signal computation pulls.
func (a Analytics) Lookback() time.Duration {
	return time.Duration(a.LookbackSecs) * time.Second
}
