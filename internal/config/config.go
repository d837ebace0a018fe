// Package config loads service configuration from an optional YAML file with
// environment overrides. Env wins so deployments can keep one file per
// environment and still patch single values.
package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Addr                string  `yaml:"addr"`
	DatabaseURL         string  `yaml:"databaseUrl"`
	RedisURL            string  `yaml:"redisUrl"`
	AuthMode            string  `yaml:"authMode"`
	DefaultTimeBudgetMs int     `yaml:"defaultTimeBudgetMs"`
	RateRPS             float64 `yaml:"rateRps"`
	RateBurst           int     `yaml:"rateBurst"`
	WebhookMaxAttempts  int     `yaml:"webhookMaxAttempts"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:                ":8080",
		DefaultTimeBudgetMs: 10000,
		RateRPS:             5,
		RateBurst:           10,
		WebhookMaxAttempts:  10,
	}
}

// Load reads path (when non-empty and present) over the defaults, then
// applies env overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("AUTH_MODE"); v != "" {
		c.AuthMode = v
	}
	if v := os.Getenv("SOLVE_TIME_BUDGET_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DefaultTimeBudgetMs = n
		}
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RateRPS = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateBurst = n
		}
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.WebhookMaxAttempts = n
		}
	}
}
