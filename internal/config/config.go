// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string

	// Detection API
	DetectBaseURL         string
	DetectAppID           string
	DetectAppSecret       string
	DetectNativeAppID     string // pair used only for native transfer screening
	DetectNativeAppSecret string
	DetectTimeout         time.Duration // 0 = no client-side timeout
	BreakerThreshold      int           // 0 = circuit breaker disabled
	BreakerCooldown       time.Duration

	// Chains
	RPCURLs         map[string]string // hex chain id -> JSON-RPC endpoint
	SupportedChains []string          // chains that get full screening
	ChainsFile      string            // optional YAML override for the chain registry

	// Screening features
	AddressLabels      bool
	SignatureScreening bool

	// Security
	RateLimitRPM int
	CORSOrigins  []string // empty = any origin
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultDetectBaseURL = "https://cb.commonservice.io"
	DefaultRateLimit     = 120
	DefaultBreakerWindow = 30 * time.Second
)

// DefaultSupportedChains are the chains the detection API fully covers
// (Ethereum and BNB Smart Chain mainnets).
var DefaultSupportedChains = []string{"0x1", "0x38"}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads configuration without validating it. The CLI uses it so that
// commands which never call the detection API still run unconfigured.
func FromEnv() *Config {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	return &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:             getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DetectBaseURL:         strings.TrimRight(getEnv("DETECT_BASE_URL", DefaultDetectBaseURL), "/"),
		DetectAppID:           os.Getenv("DETECT_APP_ID"),
		DetectAppSecret:       os.Getenv("DETECT_APP_SECRET"),
		DetectNativeAppID:     os.Getenv("DETECT_NATIVE_APP_ID"),
		DetectNativeAppSecret: os.Getenv("DETECT_NATIVE_APP_SECRET"),
		DetectTimeout:         getEnvDuration("DETECT_TIMEOUT", 0),
		BreakerThreshold:      int(getEnvInt64("DETECT_BREAKER_THRESHOLD", 0)),
		BreakerCooldown:       getEnvDuration("DETECT_BREAKER_COOLDOWN", DefaultBreakerWindow),
		RPCURLs:               parseRPCURLs(os.Getenv("RPC_URLS")),
		SupportedChains:       getEnvList("SUPPORTED_CHAINS", DefaultSupportedChains),
		ChainsFile:            os.Getenv("CHAINS_FILE"),
		AddressLabels:         getEnvBool("FEATURE_ADDRESS_LABELS", false),
		SignatureScreening:    getEnvBool("FEATURE_SIGNATURE_SCREENING", false),
		RateLimitRPM:          int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		CORSOrigins:           getEnvList("CORS_ORIGINS", nil),
	}
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.DetectAppID == "" || c.DetectAppSecret == "" {
		return fmt.Errorf("DETECT_APP_ID and DETECT_APP_SECRET are required")
	}
	if c.DetectNativeAppID == "" || c.DetectNativeAppSecret == "" {
		return fmt.Errorf("DETECT_NATIVE_APP_ID and DETECT_NATIVE_APP_SECRET are required")
	}
	if !strings.HasPrefix(c.DetectBaseURL, "http://") && !strings.HasPrefix(c.DetectBaseURL, "https://") {
		return fmt.Errorf("DETECT_BASE_URL must be an http(s) URL")
	}
	if len(c.SupportedChains) == 0 {
		return fmt.Errorf("SUPPORTED_CHAINS must list at least one chain")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseRPCURLs reads "0x1=https://eth.example,0x38=https://bsc.example".
// Malformed entries are skipped.
func parseRPCURLs(value string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		chainID, endpoint, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || chainID == "" || endpoint == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(chainID))] = strings.TrimSpace(endpoint)
	}
	return out
}
