// Package config loads server configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`
	Migrate     bool   `yaml:"migrate"`

	Auth struct {
		Mode       string `yaml:"mode"` // dev, hmac, jwks
		HMACSecret string `yaml:"hmacSecret"`
		JWKSURL    string `yaml:"jwksUrl"`
		// tokenTtl is a duration string ("24h"); yaml cannot decode into
		// time.Duration directly
		TokenTTLText string        `yaml:"tokenTtl"`
		TokenTTL     time.Duration `yaml:"-"`
	} `yaml:"auth"`

	Rate struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate"`
}

// Load reads path (when non-empty and present) and applies env overrides.
// Missing file is not an error; env-only configuration is the common case.
func Load(path string) (Config, error) {
	cfg := Config{Port: "8080", Migrate: true}
	cfg.Auth.Mode = "dev"
	cfg.Auth.TokenTTL = 24 * time.Hour

	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}
	if cfg.Auth.TokenTTLText != "" {
		d, err := time.ParseDuration(cfg.Auth.TokenTTLText)
		if err != nil {
			return cfg, err
		}
		cfg.Auth.TokenTTL = d
	}

	overrideStr(&cfg.Port, "PORT")
	overrideStr(&cfg.DatabaseURL, "DATABASE_URL")
	overrideStr(&cfg.RedisURL, "REDIS_URL")
	overrideStr(&cfg.Auth.Mode, "AUTH_MODE")
	overrideStr(&cfg.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	overrideStr(&cfg.Auth.JWKSURL, "AUTH_JWKS_URL")
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		cfg.Migrate = v != "false"
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Rate.RPS = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rate.Burst = n
		}
	}
	return cfg, nil
}

func overrideStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
