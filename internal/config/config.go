// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Port              int
	Domain            string
	SiteScheme        string
	ContentDir        string
	ReconcileInterval time.Duration
	WatchContent      bool
	SQLiteDBPath      string
	SendWebmentions   bool
	AlwaysNotify      []string
	FetchTimeout      time.Duration
	WebmentionRate    int
	FeedTitle         string
	FeedDescription   string
	LogLevel          zerolog.Level
}

// Load reads the configuration from environment variables. Unset or unparseable
// optional values fall back to their defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		Domain:            strings.TrimSpace(os.Getenv("DOMAIN")),
		SiteScheme:        strings.ToLower(getEnvString("SITE_SCHEME", "https")),
		ContentDir:        getEnvString("CONTENT_DIR", "./posts"),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		WatchContent:      getEnvBool("WATCH_CONTENT", true),
		SQLiteDBPath:      getEnvString("SQLITE_DB_PATH", "./webpress.db"),
		SendWebmentions:   getEnvBool("WEBMENTION_SEND", false),
		AlwaysNotify:      getEnvList("WEBMENTION_ALWAYS_NOTIFY"),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		WebmentionRate:    getEnvInt("WEBMENTION_RATE", 30),
		FeedTitle:         getEnvString("FEED_TITLE", "webpress"),
		FeedDescription:   os.Getenv("FEED_DESCRIPTION"),
		LogLevel:          zerolog.InfoLevel,
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other. It is called again after flag overrides.
func (c *Config) Validate() error {
	if c.SiteScheme != "http" && c.SiteScheme != "https" {
		return fmt.Errorf("SITE_SCHEME must be http or https, got %q", c.SiteScheme)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.ReconcileInterval <= 0 {
		return errors.New("RECONCILE_INTERVAL must be positive")
	}
	if c.SendWebmentions && c.Domain == "" {
		return errors.New("DOMAIN is required when WEBMENTION_SEND is enabled")
	}
	return nil
}

// SiteURL is the absolute origin posts are published under, or "" when DOMAIN is unset.
func (c *Config) SiteURL() string {
	if c.Domain == "" {
		return ""
	}
	return c.SiteScheme + "://" + c.Domain
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
