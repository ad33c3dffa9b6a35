package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the REST API.
type Config struct {
	DatabaseURL     string
	Port            int
	BearerToken     string
	RedisAddr       string
	ProfileCacheTTL time.Duration
	ShopTimezone    string
	PageSize        int
	LogLevel        string
	LogFormat       string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:            8080,
		ProfileCacheTTL: 10 * time.Minute,
		ShopTimezone:    "America/Campo_Grande",
		PageSize:        20,
		LogLevel:        "info",
		LogFormat:       "json",
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DB_URL"))
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	if v := strings.TrimSpace(os.Getenv("PROFILE_CACHE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid PROFILE_CACHE_TTL: %s", v)
		}
		cfg.ProfileCacheTTL = d
	}

	if tz := strings.TrimSpace(os.Getenv("SHOP_TIMEZONE")); tz != "" {
		cfg.ShopTimezone = tz
	}
	if _, err := time.LoadLocation(cfg.ShopTimezone); err != nil {
		return cfg, fmt.Errorf("invalid SHOP_TIMEZONE: %w", err)
	}

	if sizeStr := os.Getenv("PROACTIVE_PAGE_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			cfg.PageSize = size
		} else {
			return cfg, fmt.Errorf("invalid PROACTIVE_PAGE_SIZE: %s", sizeStr)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Location resolves the shop time zone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ShopTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
