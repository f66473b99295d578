/*
Package configs is responsible for loading and parsing the application's configuration settings.

Server parameters come from operating system environment variables, optionally seeded from a
.env file in the working directory. Channel definitions live in a separate YAML file whose
sections are handed, unparsed, to the channel registry.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"stickychat/internal/app/priority"
	"stickychat/internal/pkg/randx"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// InstanceID names this server process within the cluster.
	InstanceID string

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// PowDifficulty is the proof-of-work difficulty for anonymous session requests; 0 disables it.
	PowDifficulty int

	// Database Settings. An empty DSN keeps player state in memory.
	DatabaseDSN      string
	DatabaseMaxConns int

	// Redis Settings. An empty address runs a single instance without a cluster.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ChannelsFile points to the YAML channel definitions; optional.
	ChannelsFile string

	// Direct Message Policy
	DMPriorityThreshold priority.Level
	DMHideBlocks        bool
	DMRate              float64
	DMBurst             int
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// ClusterEnabled reports whether instances coordinate through Redis.
func (c *AppConfig) ClusterEnabled() bool {
	return c.RedisAddr != ""
}

// LoadConfig reads and parses the application configuration from environment variables.
// A .env file, when present, fills in variables that are not already set.
func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = getEnv("ENVIRONMENT", "development")

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", port, 1024, 65535)
	}
	cfg.Port = port

	cfg.InstanceID = os.Getenv("INSTANCE_ID")
	if cfg.InstanceID == "" {
		if cfg.InstanceID, err = randx.InstanceID(); err != nil {
			return nil, fmt.Errorf("generate instance id: %w", err)
		}
	}

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
	}

	if cfg.PowDifficulty, err = getInt("POW_DIFFICULTY", 0); err != nil {
		return nil, err
	}
	if cfg.PowDifficulty < 0 {
		return nil, fmt.Errorf("POW_DIFFICULTY must not be negative")
	}

	// --- Storage and Cluster Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	if cfg.DatabaseMaxConns, err = getInt("DATABASE_MAX_CONNS", 25); err != nil {
		return nil, err
	}
	if cfg.DatabaseMaxConns < 1 || cfg.DatabaseMaxConns > 1000 {
		return nil, fmt.Errorf("DATABASE_MAX_CONNS must be between 1 and 1000")
	}
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	cfg.ChannelsFile = os.Getenv("CHANNELS_FILE")

	// --- Direct Message Policy ---
	if cfg.DMPriorityThreshold, err = priority.Parse(os.Getenv("DM_PRIORITY_THRESHOLD")); err != nil {
		return nil, fmt.Errorf("invalid DM_PRIORITY_THRESHOLD environment variable: %w", err)
	}
	if cfg.DMHideBlocks, err = getBool("DM_HIDE_BLOCKS", false); err != nil {
		return nil, err
	}
	if cfg.DMRate, err = getFloat("DM_RATE", 1); err != nil {
		return nil, err
	}
	if cfg.DMBurst, err = getInt("DM_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.DMRate <= 0 || cfg.DMBurst <= 0 {
		return nil, fmt.Errorf("DM_RATE and DM_BURST must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return b, nil
}
