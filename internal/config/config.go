package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Precedence, lowest first:
// built-in defaults, YAML file, environment variables (a .env file in the
// working directory is loaded before overrides are read).
type Config struct {
	Stocks []string `yaml:"stocks"` // instrument codes to track

	Pipeline struct {
		Workers      int  `yaml:"workers"`
		LookbackDays int  `yaml:"lookback_days"` // daily-history fetch window
		ContextSize  int  `yaml:"context_size"`  // records handed to scoring
		FetchOnly    bool `yaml:"fetch_only"`
	} `yaml:"pipeline"`

	DataSource struct {
		TushareToken string `yaml:"tushare_token"`
	} `yaml:"data_source"`

	Webhook struct {
		URL string `yaml:"url"`
	} `yaml:"webhook"`

	Schedule struct {
		DailyCron string `yaml:"daily_cron"`
	} `yaml:"schedule"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STOCK_LIST"); v != "" {
		cfg.Stocks = splitCodes(v)
	}
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.LookbackDays = n
		}
	}
	if v := os.Getenv("TUSHARE_TOKEN"); v != "" {
		cfg.DataSource.TushareToken = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("DAILY_CRON"); v != "" {
		cfg.Schedule.DailyCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 3
	}
	if cfg.Pipeline.LookbackDays == 0 {
		cfg.Pipeline.LookbackDays = 60
	}
	if cfg.Pipeline.ContextSize == 0 {
		cfg.Pipeline.ContextSize = 30
	}
	if cfg.Schedule.DailyCron == "" {
		// 17:30 on weekdays, after the A-share close.
		cfg.Schedule.DailyCron = "0 30 17 * * 1-5"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/stocksentinel.db"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Stocks) == 0 {
		return fmt.Errorf("stocks is required (yaml stocks list or STOCK_LIST env)")
	}
	for _, code := range c.Stocks {
		if code == "" {
			return fmt.Errorf("stocks contains an empty code")
		}
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if c.Pipeline.LookbackDays < 1 {
		return fmt.Errorf("pipeline.lookback_days must be positive")
	}
	return nil
}

// splitCodes parses a comma-separated code list, tolerating whitespace and
// empty segments.
func splitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if code := strings.TrimSpace(part); code != "" {
			out = append(out, code)
		}
	}
	return out
}
