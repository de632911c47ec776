package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// authEnv makes Load pass its auth-material check; every test that expects
// success needs one of the two.
func authEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_HS256_SECRET", "test-secret")
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	authEnv(t)
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	authEnv(t)

	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")

	// App
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("INSTANCE_ID", "node-1")

	// Auth
	t.Setenv("AUTH_ISSUER", "https://issuer.test")
	t.Setenv("AUTH_AUDIENCE", "support-backend")
	t.Setenv("AUTH_JWKS_TTL", "5m")
	t.Setenv("AUTH_CLOCK_SKEW", "30s")

	// Breakers
	t.Setenv("BREAKER_TIMEOUT", "750ms")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("BREAKER_MIN_CALLS", "3")
	t.Setenv("BREAKER_RESET_INTERVAL", "10s")

	// Gateway
	t.Setenv("WS_HISTORY_LIMIT", "25")
	t.Setenv("WS_MAX_MESSAGE_LEN", "1000")
	t.Setenv("WS_AUTH_DEADLINE", "5s")
	t.Setenv("WS_SEND_BUFFER", "64")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging normalization
	if cfg.LogLevel != "warn" || !cfg.LogPretty {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}

	// App
	if cfg.DBPath != "db.sqlite" || cfg.NATSURL != "nats://broker:4222" || cfg.InstanceID != "node-1" {
		t.Fatalf("app fields unexpected: %+v", cfg)
	}

	// Auth
	if cfg.Auth.Issuer != "https://issuer.test" ||
		cfg.Auth.Audience != "support-backend" ||
		cfg.Auth.Secret != "test-secret" ||
		cfg.Auth.JWKSTTL != 5*time.Minute ||
		cfg.Auth.ClockSkew != 30*time.Second {
		t.Fatalf("auth fields unexpected: %+v", cfg.Auth)
	}

	// Breakers
	if cfg.Breaker.Timeout != 750*time.Millisecond ||
		cfg.Breaker.FailureRatio != 0.25 ||
		cfg.Breaker.MinimumCalls != 3 ||
		cfg.Breaker.ResetInterval != 10*time.Second ||
		cfg.Breaker.WindowSize != 100 {
		t.Fatalf("breaker fields unexpected: %+v", cfg.Breaker)
	}

	// Gateway (overrides plus untouched defaults)
	if cfg.Gateway.HistoryLimit != 25 ||
		cfg.Gateway.MaxMessageLen != 1000 ||
		cfg.Gateway.AuthDeadline != 5*time.Second ||
		cfg.Gateway.SendBuffer != 64 ||
		cfg.Gateway.PongTimeout != 60*time.Second {
		t.Fatalf("gateway fields unexpected: %+v", cfg.Gateway)
	}

	// Rate limiting fell back to defaults on parse errors
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate fields unexpected: %+v", cfg)
	}

	// CORS CSV trimming
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security fields unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" ||
		cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" ||
		cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel fields unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_RequiresAuthMaterial(t *testing.T) {
	t.Setenv("AUTH_JWKS_URL", "")
	t.Setenv("AUTH_HS256_SECRET", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_JWKS_URL") {
		t.Fatalf("Load() error = %v; want auth-material error", err)
	}

	// Either source alone is enough.
	t.Setenv("AUTH_JWKS_URL", "https://issuer.test/.well-known/jwks.json")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() with JWKS URL: %v", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts"},
		{"bad failure ratio", map[string]string{"BREAKER_FAILURE_RATIO": "1.5"}, "BREAKER_FAILURE_RATIO"},
		{"zero min calls", map[string]string{"BREAKER_MIN_CALLS": "0"}, "BREAKER_MIN_CALLS"},
		{"window below min calls", map[string]string{"BREAKER_WINDOW_SIZE": "2", "BREAKER_MIN_CALLS": "5"}, "BREAKER_WINDOW_SIZE"},
		{"zero message len", map[string]string{"WS_MAX_MESSAGE_LEN": "0"}, "WS_MAX_MESSAGE_LEN"},
		{"zero send buffer", map[string]string{"WS_SEND_BUFFER": "0"}, "WS_SEND_BUFFER"},
		{"zero cache ttl", map[string]string{"AGGREGATE_CACHE_TTL": "0s"}, "AGGREGATE_CACHE_TTL"},
		{"zero rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"bad sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "2"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v; want mention of %s", err, tc.want)
			}
		})
	}
}
