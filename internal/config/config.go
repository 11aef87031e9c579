package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	TenantHeader  string
	TenantRoot    string
	DefaultTenant string

	BackofficeURL         string
	BackofficeAPIKey      string
	BackofficeTimeout     time.Duration
	BackofficeMaxAttempts int
	BackofficeBackoff     time.Duration

	ShopSyncURL     string
	ShopSyncAPIKey  string
	ShopSyncTimeout time.Duration

	SessionTTL      time.Duration
	ScanDebounce    time.Duration
	ScanDedupWindow time.Duration
	SearchDebounce  time.Duration
	SearchLimit     int
	ScanSwapYZ      bool
	LookupCacheSize int
	LookupCacheTTL  time.Duration
	DirectoryTTL    time.Duration

	LabelLocale string
	LabelDPI    int

	RateLimitScanPerMinute int
	RateLimitAPIPerMinute  int
	IdempotencyTTL         time.Duration
	BodyLimitBytes         int64

	QueueName        string
	QueueConcurrency int
	QueueMaxRetry    int

	AuditEnabled      bool
	AuditSamplingRate float64

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	TracingEnabled   bool
	OTLPEndpoint     string
	TraceSampleRatio float64
	ServiceName      string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		TenantHeader:  valueOrDefault(k.String("TENANT_HEADER"), "X-Tenant-ID"),
		TenantRoot:    strings.TrimSpace(k.String("TENANT_ROOT_DOMAIN")),
		DefaultTenant: strings.TrimSpace(k.String("DEFAULT_TENANT")),

		BackofficeURL:         strings.TrimSpace(k.String("BACKOFFICE_URL")),
		BackofficeAPIKey:      k.String("BACKOFFICE_API_KEY"),
		BackofficeTimeout:     parseDuration(k.String("BACKOFFICE_TIMEOUT"), "5s"),
		BackofficeMaxAttempts: parseInt(k.String("BACKOFFICE_MAX_ATTEMPTS"), 3),
		BackofficeBackoff:     parseDuration(k.String("BACKOFFICE_BACKOFF"), "150ms"),

		ShopSyncURL:     strings.TrimSpace(k.String("SHOP_SYNC_URL")),
		ShopSyncAPIKey:  k.String("SHOP_SYNC_API_KEY"),
		ShopSyncTimeout: parseDuration(k.String("SHOP_SYNC_TIMEOUT"), "10s"),

		SessionTTL:      parseDuration(k.String("POS_SESSION_TTL"), "12h"),
		ScanDebounce:    parseDuration(k.String("POS_SCAN_DEBOUNCE"), "100ms"),
		ScanDedupWindow: parseDuration(k.String("POS_SCAN_DEDUP_WINDOW"), "200ms"),
		SearchDebounce:  parseDuration(k.String("POS_SEARCH_DEBOUNCE"), "300ms"),
		SearchLimit:     parseInt(k.String("POS_SEARCH_LIMIT"), 20),
		ScanSwapYZ:      parseBool(k.String("POS_SCAN_SWAP_YZ")),
		LookupCacheSize: parseInt(k.String("POS_LOOKUP_CACHE_SIZE"), 50),
		LookupCacheTTL:  parseDuration(k.String("POS_LOOKUP_CACHE_TTL"), "5m"),
		DirectoryTTL:    parseDuration(k.String("DIRECTORY_CACHE_TTL"), "5m"),

		LabelLocale: valueOrDefault(k.String("LABEL_LOCALE"), "hu"),
		LabelDPI:    parseInt(k.String("LABEL_DPI"), 203),

		RateLimitScanPerMinute: parseInt(k.String("RATE_LIMIT_SCAN_PER_MINUTE"), 240),
		RateLimitAPIPerMinute:  parseInt(k.String("RATE_LIMIT_API_PER_MINUTE"), 1200),
		IdempotencyTTL:         parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes:         int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		QueueName:        valueOrDefault(k.String("QUEUE_NAME"), "pos"),
		QueueConcurrency: parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:    parseInt(k.String("QUEUE_MAX_RETRY"), 8),

		AuditEnabled:      parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		AuditSamplingRate: parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "kasir"),
		TracingEnabled:   parseBool(k.String("OBS_TRACING_ENABLED")),
		OTLPEndpoint:     strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		TraceSampleRatio: parseFloat(k.String("OBS_TRACE_SAMPLE_RATIO"), 1),
		ServiceName:      valueOrDefault(k.String("OTEL_SERVICE_NAME"), "backend-kasir"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.BackofficeURL == "" {
		return nil, errors.New("BACKOFFICE_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
