// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, rate limiting, the
// hosted assistant-table credentials, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caredesk/clinic-assistant/internal/sysutil"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "clinic-assistant")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// JamAIConfig holds the hosted action-table credentials and table ids.
type JamAIConfig struct {
	BaseURL          string        // JAMAI_BASE_URL
	APIKey           string        // JAMAI_API_KEY
	ProjectID        string        // JAMAI_PROJECT_ID
	TableID          string        // JAMAI_TABLE_ID (chat action table)
	KnowledgeTableID string        // JAMAI_KNOWLEDGE_TABLE_ID
	Timeout          time.Duration // UPSTREAM_TIMEOUT for table calls
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
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Relational backend. DATABASE_URL selects Postgres (hosted Supabase
	// instance); when empty the server falls back to a local SQLite file.
	DatabaseURL string // Postgres DSN
	DBPath      string // SQLite path used when DatabaseURL is empty

	// Hosted assistant tables
	JamAI JamAIConfig

	// History reconstruction bounds
	HistoryPageSize int // rows per listing page
	HistoryMaxPages int // page ceiling per reconstruction

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

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
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Relational backend
		DatabaseURL: strings.TrimSpace(getenv("DATABASE_URL", "")),
		DBPath:      getenv("DB_PATH", "app.db"),

		// Hosted assistant tables
		JamAI: JamAIConfig{
			BaseURL:          getenv("JAMAI_BASE_URL", ""),
			APIKey:           getenv("JAMAI_API_KEY", ""),
			ProjectID:        getenv("JAMAI_PROJECT_ID", ""),
			TableID:          getenv("JAMAI_TABLE_ID", "clinic-chat"),
			KnowledgeTableID: getenv("JAMAI_KNOWLEDGE_TABLE_ID", ""),
			Timeout:          getdur("UPSTREAM_TIMEOUT", 60*time.Second),
		},

		// History reconstruction
		HistoryPageSize: getint("HISTORY_PAGE_SIZE", 100),
		HistoryMaxPages: getint("HISTORY_MAX_PAGES", 30),

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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "clinic-assistant"),
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
	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("either DATABASE_URL or DB_PATH must be set")
	}
	if strings.TrimSpace(cfg.JamAI.APIKey) == "" {
		return cfg, errors.New("JAMAI_API_KEY must not be empty")
	}
	if strings.TrimSpace(cfg.JamAI.ProjectID) == "" {
		return cfg, errors.New("JAMAI_PROJECT_ID must not be empty")
	}
	if strings.TrimSpace(cfg.JamAI.TableID) == "" {
		return cfg, errors.New("JAMAI_TABLE_ID must not be empty")
	}
	if cfg.JamAI.Timeout <= 0 {
		return cfg, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.HistoryPageSize < 1 {
		return cfg, errors.New("HISTORY_PAGE_SIZE must be >= 1")
	}
	if cfg.HistoryMaxPages < 1 {
		return cfg, errors.New("HISTORY_MAX_PAGES must be >= 1")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	return sysutil.FirstNonEmpty(os.Getenv(k), def)
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

// getbool defers to sysutil.IsTruthy for set, non-blank values; an unset or
// blank variable keeps the default.
func getbool(k string, def bool) bool {
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return sysutil.IsTruthy(v)
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
