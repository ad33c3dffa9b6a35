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

const (
	defaultConcurrency    = 4
	defaultVehicleTimeout = 30 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
)

// Config holds runtime configuration for the recompute job.
type Config struct {
	DatabaseURL    string
	Concurrency    int
	VehicleTimeout time.Duration
	DryRun         bool
	LogLevel       string
	LogFormat      string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Concurrency:    defaultConcurrency,
		VehicleTimeout: defaultVehicleTimeout,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DB_URL"))
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if v := strings.TrimSpace(os.Getenv("RECALC_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid RECALC_CONCURRENCY: %w", err)
		}
		if n <= 0 {
			return cfg, fmt.Errorf("invalid RECALC_CONCURRENCY: %d", n)
		}
		cfg.Concurrency = n
	}

	if v := strings.TrimSpace(os.Getenv("RECALC_VEHICLE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid RECALC_VEHICLE_TIMEOUT: %w", err)
		}
		cfg.VehicleTimeout = d
	}

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}

	return cfg, nil
}
