// Package config reads settings from the environment, optionally seeded from
// a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	API     APIConfig
	Store   StoreConfig
	Gateway GatewayConfig
	Log     LogConfig
}

type APIConfig struct {
	BaseURL string        `env:"TENXCARDS_API_URL" env-default:"http://localhost:8080/api" validate:"required,url"`
	Timeout time.Duration `env:"TENXCARDS_HTTP_TIMEOUT" env-default:"30s" validate:"gt=0"`
}

type StoreConfig struct {
	Backend string `env:"TENXCARDS_STORE" env-default:"file" validate:"oneof=file redis memory"`
	// Path defaults to the user config dir when empty.
	Path     string `env:"TENXCARDS_STORE_PATH"`
	Prefix   string `env:"TENXCARDS_STORE_PREFIX" env-default:"10xcards" validate:"required"`
	RedisURL string `env:"REDIS_URL" validate:"required_if=Backend redis"`
}

type GatewayConfig struct {
	Addr        string   `env:"TENXCARDS_GATEWAY_ADDR" env-default:"127.0.0.1:8787" validate:"required,hostname_port"`
	// CORSOrigins are compared verbatim with the Origin header after
	// trimming; entries must be scheme://host[:port].
	CORSOrigins []string `env:"TENXCARDS_CORS_ORIGINS" env-separator:"," validate:"dive,url"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT" env-default:"text" validate:"oneof=text json"`
}

// Load reads .env (if present) without overriding variables that are
// already set, then binds and validates the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

func LoadFile(dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Gateway.CORSOrigins = normalizeOrigins(cfg.Gateway.CORSOrigins)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func normalizeOrigins(origins []string) []string {
	var out []string
	seen := make(map[string]bool, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" || seen[origin] {
			continue
		}
		seen[origin] = true
		out = append(out, origin)
	}
	return out
}
