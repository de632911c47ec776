// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, token validation, circuit breakers, the real-time gateway,
// the NATS event bus, logging, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines token-validation settings. JWKSURL enables RS256
// verification against a remote key set; Secret is the HS256 fallback used
// when a token carries no key id (non-production path).
type AuthConfig struct {
	JWKSURL   string        // AUTH_JWKS_URL; empty disables the RS256 path
	Issuer    string        // AUTH_ISSUER; expected "iss" claim
	Audience  string        // AUTH_AUDIENCE; expected "aud" claim
	Secret    string        // AUTH_HS256_SECRET; shared-secret fallback
	JWKSTTL   time.Duration // AUTH_JWKS_TTL; key-set cache lifetime
	ClockSkew time.Duration // AUTH_CLOCK_SKEW; tolerated "iat" drift
}

// BreakerConfig defines default circuit-breaker tuning applied to every
// named target unless overridden at wrap time.
type BreakerConfig struct {
	Timeout       time.Duration // BREAKER_TIMEOUT; per-call deadline
	FailureRatio  float64       // BREAKER_FAILURE_RATIO in (0..1]
	MinimumCalls  int           // BREAKER_MIN_CALLS before the ratio applies
	ResetInterval time.Duration // BREAKER_RESET_INTERVAL; open → half-open
	WindowSize    int           // BREAKER_WINDOW_SIZE; recent outcomes tracked
}

// GatewayConfig defines real-time gateway behavior.
type GatewayConfig struct {
	HistoryLimit  int           // WS_HISTORY_LIMIT; messages replayed on join
	MaxMessageLen int           // WS_MAX_MESSAGE_LEN; rune cap on content
	AuthDeadline  time.Duration // WS_AUTH_DEADLINE; handshake-to-auth window
	WriteTimeout  time.Duration // WS_WRITE_TIMEOUT
	PongTimeout   time.Duration // WS_PONG_TIMEOUT; read deadline window
	SendBuffer    int           // WS_SEND_BUFFER; per-connection outbox size
}

// UpstreamConfig points at the downstream services the aggregation layer
// composes.
type UpstreamConfig struct {
	ProfileBaseURL string        // UPSTREAM_PROFILE_URL
	PostsBaseURL   string        // UPSTREAM_POSTS_URL
	CacheTTL       time.Duration // AGGREGATE_CACHE_TTL; fallback cache window
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath     string // SQLite path
	NATSURL    string // NATS server URL; empty runs without a backplane/bus
	InstanceID string // stable id for backplane origin filtering

	Auth     AuthConfig
	Breaker  BreakerConfig
	Gateway  GatewayConfig
	Upstream UpstreamConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:     getenv("DB_PATH", "app.db"),
		NATSURL:    getenv("NATS_URL", ""),
		InstanceID: getenv("INSTANCE_ID", ""),

		Auth: AuthConfig{
			JWKSURL:   getenv("AUTH_JWKS_URL", ""),
			Issuer:    getenv("AUTH_ISSUER", ""),
			Audience:  getenv("AUTH_AUDIENCE", ""),
			Secret:    getenv("AUTH_HS256_SECRET", ""),
			JWKSTTL:   getdur("AUTH_JWKS_TTL", 10*time.Minute),
			ClockSkew: getdur("AUTH_CLOCK_SKEW", 2*time.Minute),
		},

		Breaker: BreakerConfig{
			Timeout:       getdur("BREAKER_TIMEOUT", 3*time.Second),
			FailureRatio:  getfloat("BREAKER_FAILURE_RATIO", 0.5),
			MinimumCalls:  getint("BREAKER_MIN_CALLS", 5),
			ResetInterval: getdur("BREAKER_RESET_INTERVAL", 30*time.Second),
			WindowSize:    getint("BREAKER_WINDOW_SIZE", 100),
		},

		Gateway: GatewayConfig{
			HistoryLimit:  getint("WS_HISTORY_LIMIT", 50),
			MaxMessageLen: getint("WS_MAX_MESSAGE_LEN", 2000),
			AuthDeadline:  getdur("WS_AUTH_DEADLINE", 10*time.Second),
			WriteTimeout:  getdur("WS_WRITE_TIMEOUT", 10*time.Second),
			PongTimeout:   getdur("WS_PONG_TIMEOUT", 60*time.Second),
			SendBuffer:    getint("WS_SEND_BUFFER", 256),
		},

		Upstream: UpstreamConfig{
			ProfileBaseURL: getenv("UPSTREAM_PROFILE_URL", "http://localhost:8081"),
			PostsBaseURL:   getenv("UPSTREAM_POSTS_URL", "http://localhost:8082"),
			CacheTTL:       getdur("AGGREGATE_CACHE_TTL", 5*time.Minute),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-support-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Auth.JWKSURL == "" && cfg.Auth.Secret == "" {
		return cfg, errors.New("one of AUTH_JWKS_URL or AUTH_HS256_SECRET must be set")
	}
	if cfg.Auth.JWKSTTL <= 0 {
		return cfg, errors.New("AUTH_JWKS_TTL must be > 0")
	}
	if cfg.Auth.ClockSkew < 0 {
		return cfg, errors.New("AUTH_CLOCK_SKEW must be >= 0")
	}
	if cfg.Breaker.Timeout <= 0 || cfg.Breaker.ResetInterval <= 0 {
		return cfg, errors.New("breaker timeout and reset interval must be > 0")
	}
	if cfg.Breaker.FailureRatio <= 0 || cfg.Breaker.FailureRatio > 1 {
		return cfg, errors.New("BREAKER_FAILURE_RATIO must be in (0,1]")
	}
	if cfg.Breaker.MinimumCalls < 1 {
		return cfg, errors.New("BREAKER_MIN_CALLS must be >= 1")
	}
	if cfg.Breaker.WindowSize < cfg.Breaker.MinimumCalls {
		return cfg, errors.New("BREAKER_WINDOW_SIZE must be >= BREAKER_MIN_CALLS")
	}
	if cfg.Gateway.HistoryLimit < 0 {
		return cfg, errors.New("WS_HISTORY_LIMIT must be >= 0")
	}
	if cfg.Gateway.MaxMessageLen < 1 {
		return cfg, errors.New("WS_MAX_MESSAGE_LEN must be >= 1")
	}
	if cfg.Gateway.SendBuffer < 1 {
		return cfg, errors.New("WS_SEND_BUFFER must be >= 1")
	}
	if cfg.Upstream.CacheTTL <= 0 {
		return cfg, errors.New("AGGREGATE_CACHE_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
