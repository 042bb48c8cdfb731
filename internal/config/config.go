package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	// HTTP
	Port        string
	CORSOrigins []string
	StaticDir   string

	// Upload ledger (both empty = no ledger)
	SQLitePath  string
	DatabaseURL string // wins over SQLitePath

	// Cache and uploads
	CacheMaxEntries  int // 0 = unbounded
	MaxUploadMB      int
	UploadRatePerMin int // 0 = unlimited

	// Logging
	LogLevel  string
	LogFormat string // text or json
}

// defaults maps each env key to its default value
var defaults = map[string]any{
	"PORT":                "8081",
	"CORS_ORIGINS":        "http://localhost:3000",
	"STATIC_DIR":          "",
	"SQLITE_DATABASE":     "",
	"DATABASE_URL":        "",
	"CACHE_MAX_ENTRIES":   0,
	"MAX_UPLOAD_MB":       50,
	"UPLOAD_RATE_PER_MIN": 30,
	"LOG_LEVEL":           "info",
	"LOG_FORMAT":          "text",
}

// Load reads configuration from environment variables with sensible defaults.
// .env then .env.local are loaded first; an optional YAML file at path
// (same keys, lower case accepted) sits below the environment.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:             v.GetString("PORT"),
		CORSOrigins:      splitList(v.GetString("CORS_ORIGINS")),
		StaticDir:        v.GetString("STATIC_DIR"),
		SQLitePath:       v.GetString("SQLITE_DATABASE"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		CacheMaxEntries:  v.GetInt("CACHE_MAX_ENTRIES"),
		MaxUploadMB:      v.GetInt("MAX_UPLOAD_MB"),
		UploadRatePerMin: v.GetInt("UPLOAD_RATE_PER_MIN"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:        strings.ToLower(v.GetString("LOG_FORMAT")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be >= 0, got %d", c.CacheMaxEntries)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be > 0, got %d", c.MaxUploadMB)
	}
	if c.UploadRatePerMin < 0 {
		return fmt.Errorf("UPLOAD_RATE_PER_MIN must be >= 0, got %d", c.UploadRatePerMin)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// MaxUploadBytes is the request body limit for uploads
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// LedgerBackend names the configured upload ledger: postgres, sqlite or none
func (c *Config) LedgerBackend() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	}
	return "none"
}

// loadEnvFiles loads .env, then .env.local which overrides it for local development
func loadEnvFiles() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	if _, err := os.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local") // Overload forces override of existing values
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
