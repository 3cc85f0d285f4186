package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Save original environment
	originalEnv := os.Environ()

	// Clean up after test
	defer func() {
		os.Clearenv()
		for _, entry := range originalEnv {
			if key, value, ok := strings.Cut(entry, "="); ok {
				os.Setenv(key, value)
			}
		}
	}()

	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*Config) bool
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			expected: func(cfg *Config) bool {
				return cfg.Port == "8081" &&
					cfg.LogLevel == "info" &&
					cfg.Source == "USD" &&
					cfg.RatesTTL == 0 &&
					cfg.Secure == false &&
					cfg.Host == "apilayer.net" &&
					cfg.FetchTimeout == 10*time.Second &&
					cfg.RefreshInterval == 0 &&
					cfg.CacheBackend == "none" &&
					cfg.RateLimitEnabled == true &&
					cfg.RateLimitRequests == 100 &&
					cfg.RateLimitWindow == 60*time.Second &&
					cfg.RateLimitBurst == 10
			},
		},
		{
			name: "custom configuration",
			envVars: map[string]string{
				"PORT":                          "9090",
				"LOG_LEVEL":                     "debug",
				"CURRENCYLAYER_ACCESS_KEY":      "secret",
				"CURRENCYLAYER_SOURCE":          "eur",
				"CURRENCYLAYER_TTL_SECONDS":     "3600",
				"CURRENCYLAYER_SECURE":          "true",
				"CURRENCYLAYER_REFRESH_SECONDS": "300",
				"CACHE_BACKEND":                 "FILE",
				"CACHE_FILE":                    "/tmp/rates.json",
				"RATE_LIMIT_ENABLED":            "false",
			},
			expected: func(cfg *Config) bool {
				return cfg.Port == "9090" &&
					cfg.LogLevel == "debug" &&
					cfg.AccessKey == "secret" &&
					cfg.Source == "EUR" &&
					cfg.RatesTTL == time.Hour &&
					cfg.Secure == true &&
					cfg.RefreshInterval == 5*time.Minute &&
					cfg.CacheBackend == "file" &&
					cfg.CacheFile == "/tmp/rates.json" &&
					cfg.RateLimitEnabled == false
			},
		},
		{
			name: "unparsable numbers fall back",
			envVars: map[string]string{
				"CURRENCYLAYER_TTL_SECONDS": "soon",
				"RATE_LIMIT_BURST":          "many",
			},
			expected: func(cfg *Config) bool {
				return cfg.RatesTTL == 0 && cfg.RateLimitBurst == 10
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for key, value := range tt.envVars {
				os.Setenv(key, value)
			}

			// Load configuration
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			// Check expected values
			if !tt.expected(cfg) {
				t.Errorf("Load() configuration does not match expected values: %+v", cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Source: "usd", CacheBackend: "none"}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(cfg *Config) {}, false},
		{"unknown source", func(cfg *Config) { cfg.Source = "ABC" }, true},
		{"negative ttl", func(cfg *Config) { cfg.RatesTTL = -time.Second }, true},
		{"negative refresh interval", func(cfg *Config) { cfg.RefreshInterval = -time.Second }, true},
		{"unknown backend", func(cfg *Config) { cfg.CacheBackend = "s3" }, true},
		{"file without path", func(cfg *Config) { cfg.CacheBackend = "file" }, true},
		{"small memory cache", func(cfg *Config) { cfg.CacheBackend = "memory"; cfg.CacheMemoryBytes = 1024 * 1024 }, true},
		{"memory cache at the floor", func(cfg *Config) { cfg.CacheBackend = "memory"; cfg.CacheMemoryBytes = MinCacheMemoryBytes }, false},
		{"memory size ignored for other backends", func(cfg *Config) { cfg.CacheMemoryBytes = 1024 }, false},
		{"missing access key is allowed", func(cfg *Config) { cfg.AccessKey = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil || cfg.Source != "USD" {
		t.Errorf("Validate() source = %v, want USD", cfg.Source)
	}
}
