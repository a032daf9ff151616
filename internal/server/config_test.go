package server

import (
	"testing"
	"time"
)

func TestSetConfigSanitizesZeroValues(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{AllowedOrigins: []string{" http://Example.com/ ", "bogus", "*"}})
	cfg := CurrentConfig()

	def := defaultConfig()
	if cfg.Port != def.Port {
		t.Errorf("port = %q, want %q", cfg.Port, def.Port)
	}
	if cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("max message size = %d", cfg.MaxMessageSize)
	}
	if cfg.OfflineGracePeriod != 8*time.Second {
		t.Errorf("grace = %v, want 8s", cfg.OfflineGracePeriod)
	}
	if cfg.PersistTimeout != 5*time.Second {
		t.Errorf("persist timeout = %v, want 5s", cfg.PersistTimeout)
	}
	if cfg.NatsSubject != "nexus.fanout" || cfg.MongoDatabase != "nexus" {
		t.Errorf("backend defaults = %q %q", cfg.NatsSubject, cfg.MongoDatabase)
	}
	if cfg.MongoMaxPoolSize != 100 {
		t.Errorf("mongo pool = %d, want 100", cfg.MongoMaxPoolSize)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://example.com" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
	if !currentOriginPolicy().allowAll {
		t.Error("wildcard should enable allow-all")
	}
	if ignored := IgnoredOrigins(); len(ignored) != 1 || ignored[0] != "bogus" {
		t.Errorf("ignored = %v, want [bogus]", ignored)
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("OFFLINE_GRACE_PERIOD", "1500ms")
	t.Setenv("PERSIST_TIMEOUT", "2")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_MAX_POOL_SIZE", "25")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("NATS_SUBJECT", "chat.fanout")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENV", "production")

	cfg := NewConfigFromEnv()

	if cfg.Port != ":9999" {
		t.Errorf("port = %q", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 2048 {
		t.Errorf("max size = %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 7 || cfg.RateLimit.RefillInterval != 3*time.Second {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.OfflineGracePeriod != 1500*time.Millisecond {
		t.Errorf("grace = %v", cfg.OfflineGracePeriod)
	}
	if cfg.PersistTimeout != 2*time.Second {
		t.Errorf("persist timeout = %v", cfg.PersistTimeout)
	}
	if cfg.MongoURI == "" || cfg.RedisURL == "" || cfg.NatsURL == "" {
		t.Errorf("backend urls not read: %+v", cfg)
	}
	if cfg.MongoMaxPoolSize != 25 {
		t.Errorf("mongo pool = %d, want 25", cfg.MongoMaxPoolSize)
	}
	if cfg.NatsSubject != "chat.fanout" || cfg.LogLevel != "debug" {
		t.Errorf("subject/level = %q %q", cfg.NatsSubject, cfg.LogLevel)
	}
	if cfg.IsDevelopment() {
		t.Error("ENV=production should not be development")
	}
}

func TestNewConfigFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-1")
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("OFFLINE_GRACE_PERIOD", "soon")
	t.Setenv("MONGO_MAX_POOL_SIZE", "0")

	cfg := NewConfigFromEnv()
	def := defaultConfig()
	if cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("max size = %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != def.RateLimit.Burst {
		t.Errorf("burst = %d", cfg.RateLimit.Burst)
	}
	if cfg.OfflineGracePeriod != def.OfflineGracePeriod {
		t.Errorf("grace = %v", cfg.OfflineGracePeriod)
	}
	if cfg.MongoMaxPoolSize != def.MongoMaxPoolSize {
		t.Errorf("mongo pool = %d", cfg.MongoMaxPoolSize)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	limiter := newRateLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("message %d should pass", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("fourth message should be limited")
	}
}
