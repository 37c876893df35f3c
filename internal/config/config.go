package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	HTTPPort string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreTTL      time.Duration

	MongoURI      string
	MongoDatabase string

	JWTSecret string
	PortalKey string
	TokenTTL  time.Duration

	MoveBacklog int

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string
}

// Load reads the environment, after an optional .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StoreRedis)),
		RedisAddr:     strings.TrimPrefix(getEnv("REDIS_ADDR", "localhost:6379"), "redis://"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "classplay"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		PortalKey:     getEnv("PORTAL_KEY", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.MoveBacklog, err = getEnvInt("MOVE_BACKLOG", 50); err != nil {
		return nil, err
	}
	if cfg.StoreTTL, err = getEnvDuration("STORE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getEnvDuration("TOKEN_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	for _, o := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe default
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreRedis, StoreMemory, c.StoreBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MoveBacklog <= 0 {
		return fmt.Errorf("MOVE_BACKLOG must be positive, got %d", c.MoveBacklog)
	}
	return nil
}

// ArchiveEnabled reports whether finished sessions go to MongoDB
func (c *Config) ArchiveEnabled() bool {
	return c.MongoURI != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
