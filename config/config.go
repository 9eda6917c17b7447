package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string      `yaml:"port"`
	Environment    string      `yaml:"environment"`
	AllowedOrigins []string    `yaml:"allowedOrigins"`
	JWTSecret      string      `yaml:"jwtSecret"`
	ServiceSecret  string      `yaml:"serviceSecret"`
	Redis          RedisConfig `yaml:"redis"`
	Sync           SyncConfig  `yaml:"sync"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SyncConfig selects the change-sync strategy. Mode is "feed" (push change
// feed) or "poll" (interval diff against the catalog store).
type SyncConfig struct {
	Mode         string        `yaml:"mode"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Collections  []string      `yaml:"collections"`
}

// Load reads an optional YAML file and applies environment overrides on top.
// A missing file is not an error; env vars alone are enough to run.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:           "8080",
		Environment:    "development",
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		JWTSecret:      "change-me-in-production",
		ServiceSecret:  "change-me-in-production",
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
			DB:   0,
		},
		Sync: SyncConfig{
			Mode:         "poll",
			PollInterval: 5 * time.Second,
			Collections:  []string{"products", "services", "locations", "teams"},
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.ServiceSecret = getEnv("SERVICE_SECRET", cfg.ServiceSecret)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", db, err)
		}
		cfg.Redis.DB = n
	}
	cfg.Sync.Mode = getEnv("SYNC_MODE", cfg.Sync.Mode)
	if iv := os.Getenv("SYNC_POLL_INTERVAL"); iv != "" {
		d, err := time.ParseDuration(iv)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_POLL_INTERVAL %q: %w", iv, err)
		}
		cfg.Sync.PollInterval = d
	}

	if cfg.Sync.Mode != "feed" && cfg.Sync.Mode != "poll" {
		return nil, fmt.Errorf("invalid sync mode %q", cfg.Sync.Mode)
	}
	if cfg.Sync.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.Sync.PollInterval)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
