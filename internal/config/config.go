package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level

	ContentDir string `env:"CONTENT_DIR" envDefault:"data/content"`

	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"memory"`
	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"data/dialogue.db"`
	DataFile         string `env:"DATA_FILE" envDefault:"data/saves.json"`
	StorageKeyPrefix string `env:"STORAGE_KEY_PREFIX" envDefault:"dlg:v1:"`
	MaxPayloadBytes  int    `env:"MAX_PAYLOAD_BYTES" envDefault:"1048576"`

	DataFileSaveInterval time.Duration `env:"DATA_FILE_SAVE_INTERVAL" envDefault:"10s"`

	EnrichmentURL       string        `env:"ENRICHMENT_URL"`
	DedupURL            string        `env:"DEDUP_URL"`
	EnrichmentTimeout   time.Duration `env:"ENRICHMENT_TIMEOUT" envDefault:"2s"`
	EnrichmentThreshold float64       `env:"ENRICHMENT_THRESHOLD" envDefault:"0.75"`
	DedupThreshold      float64       `env:"DEDUP_THRESHOLD" envDefault:"0.85"`
	EnrichmentRPS       float64       `env:"ENRICHMENT_RPS" envDefault:"2"`
}

// Load reads an optional .env file from the working directory, then the
// process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return Parse(env.Options{})
}

// Parse builds a Config from the environment described by opts. Tests pass
// opts.Environment to avoid touching the process environment.
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendRedis, BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be positive")
	}
	if c.EnrichmentTimeout <= 0 {
		return fmt.Errorf("ENRICHMENT_TIMEOUT must be positive")
	}
	for name, v := range map[string]float64{
		"ENRICHMENT_THRESHOLD": c.EnrichmentThreshold,
		"DEDUP_THRESHOLD":      c.DedupThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
