package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dalfonso89/currencylayer-bank/internal/currency"
)

// DefaultSource is the base currency used when none is configured.
const DefaultSource = "USD"

// MinCacheMemoryBytes is the smallest in-process cache that can hold a full feed
// document; freecache rejects entries larger than 1/1024 of its size.
const MinCacheMemoryBytes = 4 * 1024 * 1024

// Cache backends accepted in CACHE_BACKEND.
var cacheBackends = map[string]bool{"none": true, "file": true, "memory": true, "redis": true}

// Config holds all configuration for the application
type Config struct {
	Port     string
	LogLevel string

	// currencylayer feed
	AccessKey    string
	Source       string
	RatesTTL     time.Duration // 0 never expires
	Secure       bool
	Host         string
	FetchTimeout time.Duration
	// RefreshInterval runs the freshness check in the background; 0 disables it.
	RefreshInterval time.Duration

	// Cache store
	CacheBackend     string
	CacheFile        string
	CacheKey         string
	CacheMemoryBytes int
	RedisAddr        string
	RedisDB          int

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AccessKey:    getEnv("CURRENCYLAYER_ACCESS_KEY", ""),
		Source:       getEnv("CURRENCYLAYER_SOURCE", DefaultSource),
		RatesTTL:     time.Duration(getEnvInt("CURRENCYLAYER_TTL_SECONDS", 0)) * time.Second,
		Secure:       getEnvBool("CURRENCYLAYER_SECURE", false),
		Host:         getEnv("CURRENCYLAYER_HOST", "apilayer.net"),
		FetchTimeout: time.Duration(getEnvInt("CURRENCYLAYER_TIMEOUT_SECONDS", 10)) * time.Second,

		RefreshInterval: time.Duration(getEnvInt("CURRENCYLAYER_REFRESH_SECONDS", 0)) * time.Second,

		CacheBackend:     strings.ToLower(getEnv("CACHE_BACKEND", "none")),
		CacheFile:        getEnv("CACHE_FILE", ""),
		CacheKey:         getEnv("CACHE_KEY", "currencylayer:live"),
		CacheMemoryBytes: getEnvInt("CACHE_MEMORY_BYTES", 32*1024*1024),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises the source currency and rejects settings that cannot work.
// A missing access key is not rejected here: it surfaces when the feed is first called.
func (cfg *Config) Validate() error {
	source, ok := currency.Normalize(cfg.Source)
	if !ok {
		return fmt.Errorf("CURRENCYLAYER_SOURCE: %w: %q", currency.ErrUnknownCurrency, cfg.Source)
	}
	cfg.Source = source

	if cfg.RatesTTL < 0 {
		return fmt.Errorf("CURRENCYLAYER_TTL_SECONDS must be >= 0, got %v", cfg.RatesTTL)
	}
	if cfg.RefreshInterval < 0 {
		return fmt.Errorf("CURRENCYLAYER_REFRESH_SECONDS must be >= 0, got %v", cfg.RefreshInterval)
	}
	if !cacheBackends[cfg.CacheBackend] {
		return fmt.Errorf("CACHE_BACKEND %q is not one of none, file, memory, redis", cfg.CacheBackend)
	}
	if cfg.CacheBackend == "file" && cfg.CacheFile == "" {
		return fmt.Errorf("CACHE_FILE is required when CACHE_BACKEND=file")
	}
	if cfg.CacheBackend == "memory" && cfg.CacheMemoryBytes < MinCacheMemoryBytes {
		return fmt.Errorf("CACHE_MEMORY_BYTES must be >= %d, got %d", MinCacheMemoryBytes, cfg.CacheMemoryBytes)
	}
	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return value
}
