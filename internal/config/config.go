package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hray3182/nudge/internal/leadtime"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	TelegramToken string

	DBDriver    string
	DatabaseURI string
	SQLitePath  string

	PollInterval  time.Duration
	DueWindow     time.Duration
	LeadTimesFile string

	LogLevel string

	AIAPIKey          string
	AIBaseURL         string
	AIModel           string
	AITranscribeModel string
}

func Load() (*Config, error) {
	// .env file is optional in production
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:     os.Getenv("TELEGRAM_TOKEN"),
		DatabaseURI:       os.Getenv("DATABASE_URI"),
		SQLitePath:        getEnvOrDefault("SQLITE_PATH", "data/nudge.db"),
		LeadTimesFile:     os.Getenv("LEAD_TIMES_FILE"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		AIAPIKey:          os.Getenv("AI_API_KEY"),
		AIBaseURL:         getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:           getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),
		AITranscribeModel: getEnvOrDefault("AI_TRANSCRIBE_MODEL", "whisper-1"),
	}

	cfg.DBDriver = strings.ToLower(os.Getenv("DB_DRIVER"))
	if cfg.DBDriver == "" {
		cfg.DBDriver = DriverSQLite
		if cfg.DatabaseURI != "" {
			cfg.DBDriver = DriverPostgres
		}
	}

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DueWindow, err = getDuration("DUE_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	switch c.DBDriver {
	case DriverPostgres:
		if c.DatabaseURI == "" {
			errs = append(errs, errors.New("DATABASE_URI is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of %s, %s", c.DBDriver, DriverPostgres, DriverSQLite))
	}
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL %s is below 1s", c.PollInterval))
	}
	if c.DueWindow <= 0 {
		errs = append(errs, fmt.Errorf("DUE_WINDOW %s must be positive", c.DueWindow))
	} else if c.PollInterval > 2*c.DueWindow {
		// each check sees [now-window, now+window]; gaps between checks lose alerts
		errs = append(errs, fmt.Errorf("POLL_INTERVAL %s is more than twice DUE_WINDOW %s", c.PollInterval, c.DueWindow))
	}
	return errors.Join(errs...)
}

// LeadTimes loads the alert schedule, falling back to the built-in one.
func (c *Config) LeadTimes() (leadtime.Policy, error) {
	return leadtime.Load(c.LeadTimesFile)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
