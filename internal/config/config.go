package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by APP_CYCLE_BACKEND.
const (
	CycleBackendPostgres = "postgres"
	CycleBackendDynamo   = "dynamodb"
)

type Config struct {
	ListenAddr string

	DB struct {
		DSN string
	}

	Auth struct {
		JWTSecret string
		Issuer    string
	}

	Cycle struct {
		Backend          string
		DynamoEntries    string
		DynamoPrefs      string
		DynamoEndpoint   string
		RemindersEnabled bool
		ReminderSchedule string
		ReminderZone     *time.Location
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Auth.JWTSecret = os.Getenv("APP_JWT_SECRET")
	cfg.Auth.Issuer = os.Getenv("APP_JWT_ISSUER")

	cfg.Cycle.Backend = strings.ToLower(getenvDefault("APP_CYCLE_BACKEND", CycleBackendPostgres))
	cfg.Cycle.DynamoEntries = getenvDefault("APP_DYNAMO_ENTRIES_TABLE", "menstrual_cycles")
	cfg.Cycle.DynamoPrefs = getenvDefault("APP_DYNAMO_PREFS_TABLE", "cycle_prefs")
	cfg.Cycle.DynamoEndpoint = os.Getenv("APP_DYNAMO_ENDPOINT")
	cfg.Cycle.RemindersEnabled = getenvBool("APP_REMINDERS_ENABLED", true)
	cfg.Cycle.ReminderSchedule = getenvDefault("APP_REMINDER_SCHEDULE", "0 8 * * *")

	zone := getenvDefault("APP_REMINDER_TZ", "UTC")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("APP_REMINDER_TZ %q: %w", zone, err)
	}
	cfg.Cycle.ReminderZone = loc

	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("APP_JWT_SECRET is required")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return nil, fmt.Errorf("APP_JWT_SECRET must be at least 32 characters long (got %d)", len(cfg.Auth.JWTSecret))
	}
	switch cfg.Cycle.Backend {
	case CycleBackendPostgres, CycleBackendDynamo:
	default:
		return nil, fmt.Errorf("APP_CYCLE_BACKEND must be %q or %q (got %q)", CycleBackendPostgres, CycleBackendDynamo, cfg.Cycle.Backend)
	}

	if len(cfg.TrustedProxies) == 0 {
		log.Println("WARNING: No APP_TRUSTED_PROXIES configured. X-Forwarded-For is ignored and rate limits key on the direct peer address.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
