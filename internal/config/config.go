package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	appLog "caseload-scheduler/internal/log"
	"caseload-scheduler/internal/schedule"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// AuthConfig lists the accepted bearer credentials. With neither set the
// API runs unauthenticated.
type AuthConfig struct {
	StaticTokens  []string `yaml:"static_tokens"`
	JWTHMACSecret string   `yaml:"jwt_hmac_secret"`
}

// Config is the top-level service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Store selects the backend: "postgres" or "memory".
	Store string `yaml:"store"`

	// DatabaseURL is the pgx connection string for the postgres store.
	DatabaseURL string `yaml:"database_url"`

	// ProdID is written as PRODID in the ICS feed.
	ProdID string `yaml:"prod_id"`

	// FeedTokenParam names the query parameter that may carry the bearer
	// token for the ICS feed, since calendar clients cannot send headers.
	FeedTokenParam string `yaml:"feed_token_param"`

	LogLevel string `yaml:"log_level"`

	// MaxWindowDays caps the span of one calendar window query.
	MaxWindowDays int `yaml:"max_window_days"`

	Auth AuthConfig `yaml:"auth"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:         ":8080",
		Store:          StorePostgres,
		ProdID:         schedule.DefaultProdID,
		FeedTokenParam: "token",
		LogLevel:       "info",
		MaxWindowDays:  3 * 366,
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Store == "" {
		c.Store = d.Store
	}
	if c.ProdID == "" {
		c.ProdID = d.ProdID
	}
	if c.FeedTokenParam == "" {
		c.FeedTokenParam = d.FeedTokenParam
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.MaxWindowDays == 0 {
		c.MaxWindowDays = d.MaxWindowDays
	}
	c.Auth.StaticTokens = trimTokens(c.Auth.StaticTokens)
}

func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store: %s", c.Store)
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxWindowDays <= 0 {
		return fmt.Errorf("invalid max_window_days: %d", c.MaxWindowDays)
	}
	return nil
}

// Load reads the YAML file at path, if any, then applies env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			appLog.Info("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.Listen = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("STORE")); v != "" {
		c.Store = v
	}
	if v := strings.TrimSpace(os.Getenv("STATIC_TOKENS")); v != "" {
		c.Auth.StaticTokens = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("JWT_HMAC_SECRET")); v != "" {
		c.Auth.JWTHMACSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxWindowDays = n
		} else {
			appLog.Warn("ignoring invalid MAX_WINDOW_DAYS", "value", v)
		}
	}
}

func trimTokens(in []string) []string {
	var out []string
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
