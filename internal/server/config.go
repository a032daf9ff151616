// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls
// and the addresses of the backing services. Empty backend URLs mean the
// service is not used.
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	OfflineGracePeriod time.Duration
	PersistTimeout     time.Duration

	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	RedisURL         string
	NatsURL          string
	NatsSubject      string
}

var (
	configMu      sync.RWMutex
	activeConfig  Config
	activeOrigins originPolicy
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:     ":8080",
		Env:      "development",
		LogLevel: "info",
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:5173",
		},
		MaxMessageSize: 64 * 1024,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		OfflineGracePeriod: 8 * time.Second,
		PersistTimeout:     5 * time.Second,
		MongoDatabase:      "nexus",
		MongoMaxPoolSize:   100,
		NatsSubject:        "nexus.fanout",
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	if cfg.OfflineGracePeriod <= 0 {
		cfg.OfflineGracePeriod = def.OfflineGracePeriod
	}

	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}

	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = def.MongoDatabase
	}

	if cfg.MongoMaxPoolSize == 0 {
		cfg.MongoMaxPoolSize = def.MongoMaxPoolSize
	}

	if cfg.NatsSubject == "" {
		cfg.NatsSubject = def.NatsSubject
	}

	policy := newOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = policy.list

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activeOrigins = policy

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// IgnoredOrigins lists configured origins that were dropped because they
// are not absolute URLs.
func IgnoredOrigins() []string {
	configMu.RLock()
	defer configMu.RUnlock()
	return append([]string(nil), activeOrigins.ignored...)
}

func currentOriginPolicy() originPolicy {
	configMu.RLock()
	defer configMu.RUnlock()
	return activeOrigins
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// NewConfigFromEnv creates a Config instance from environment variables,
// reading a .env file first when one exists.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if grace := os.Getenv("OFFLINE_GRACE_PERIOD"); grace != "" {
		cfg.OfflineGracePeriod = parseDuration(grace, cfg.OfflineGracePeriod)
	}

	if timeout := os.Getenv("PERSIST_TIMEOUT"); timeout != "" {
		cfg.PersistTimeout = parseDuration(timeout, cfg.PersistTimeout)
	}

	cfg.MongoURI = os.Getenv("MONGO_URI")
	if db := os.Getenv("MONGO_DATABASE"); db != "" {
		cfg.MongoDatabase = db
	}
	if pool := os.Getenv("MONGO_MAX_POOL_SIZE"); pool != "" {
		cfg.MongoMaxPoolSize = uint64(parseIntValue(pool, int(cfg.MongoMaxPoolSize)))
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.NatsURL = os.Getenv("NATS_URL")
	if subject := os.Getenv("NATS_SUBJECT"); subject != "" {
		cfg.NatsSubject = subject
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// parseDuration accepts Go durations ("8s", "500ms") or plain seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return parseRefillInterval(value, defaultValue)
}
