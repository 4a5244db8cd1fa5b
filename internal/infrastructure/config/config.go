// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback), optionally seeded from a .env file
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	threshold := cfg.Matching.SuggestThreshold
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Matching      MatchingConfig      `yaml:"matching"`
	Import        ImportConfig        `yaml:"import"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port                int      `yaml:"port"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	MaxUploadMB         int      `yaml:"max_upload_mb"`
	UploadRatePerMinute int      `yaml:"upload_rate_per_minute"` // 0 disables the limiter
}

// MatchingConfig holds reconciliation settings
type MatchingConfig struct {
	SuggestThreshold int    `yaml:"suggest_threshold"`
	AmountTolerance  string `yaml:"amount_tolerance"` // decimal string, e.g. "0.01"
	Workers          int    `yaml:"workers"`
	Exclusive        bool   `yaml:"exclusive"` // suggest each ledger transaction at most once per run
}

// ImportConfig holds statement import settings
type ImportConfig struct {
	DedupWindow time.Duration `yaml:"dedup_window"` // identical files inside this window are not re-imported
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" (console) or "json"
}

// Defaults returns the configuration used when nothing else is set
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: "bankrecon.db",
		},
		Server: ServerConfig{
			Port:                8080,
			AllowedOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			MaxUploadMB:         10,
			UploadRatePerMinute: 30,
		},
		Matching: MatchingConfig{
			SuggestThreshold: 80,
			AmountTolerance:  "0.01",
			Workers:          1,
		},
		Import: ImportConfig{
			DedupWindow: 10 * time.Minute,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// Load reads and parses the config file. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${BANKRECON_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	def := Defaults()
	return &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("BANKRECON_DB_PATH", def.Storage.DatabasePath),
		},
		Server: ServerConfig{
			Port:                getEnvInt("BANKRECON_PORT", def.Server.Port),
			AllowedOrigins:      getEnvList("BANKRECON_ALLOWED_ORIGINS", def.Server.AllowedOrigins),
			MaxUploadMB:         getEnvInt("BANKRECON_MAX_UPLOAD_MB", def.Server.MaxUploadMB),
			UploadRatePerMinute: getEnvInt("BANKRECON_UPLOAD_RATE", def.Server.UploadRatePerMinute),
		},
		Matching: MatchingConfig{
			SuggestThreshold: getEnvInt("BANKRECON_SUGGEST_THRESHOLD", def.Matching.SuggestThreshold),
			AmountTolerance:  getEnv("BANKRECON_AMOUNT_TOLERANCE", def.Matching.AmountTolerance),
			Workers:          getEnvInt("BANKRECON_MATCH_WORKERS", def.Matching.Workers),
			Exclusive:        getEnv("BANKRECON_MATCH_EXCLUSIVE", "") == "true",
		},
		Import: ImportConfig{
			DedupWindow: getEnvDuration("BANKRECON_DEDUP_WINDOW", def.Import.DedupWindow),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", def.Observability.Logging.Level),
				Format: getEnv("LOG_FORMAT", def.Observability.Logging.Format),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables.
// A .env file in the working directory is loaded first if present; it never
// overrides variables that are already set.
func LoadOrEnvWithPath(path string) *Config {
	_ = godotenv.Load()

	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvDuration retrieves a duration environment variable (e.g. "5m")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated environment variable
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
