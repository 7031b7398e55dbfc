package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	CMS         CMSConfig
	Email       EmailConfig
	Tracing     TracingConfig
	Jobs        JobsConfig
	Tracking    TrackingConfig
	Logging     LoggingConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// AuthConfig holds the BaaS auth settings and the server's own master secret.
type AuthConfig struct {
	BaaSURL        string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	SecretKey      string
	SessionMaxAge  time.Duration
}

type RateLimitConfig struct {
	PublicPerMinute    int
	APIPerMinute       int
	TrackingPerMinute  int
	SensitivePerMinute int
	AuthPerMinute      int
	TrustedProxyCIDRs  []string
}

type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

type CMSConfig struct {
	URL      string
	Token    string
	CacheTTL time.Duration
}

type EmailConfig struct {
	Enabled      bool
	From         string
	ResendAPIKey string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

type JobsConfig struct {
	Enabled                bool
	RetentionSchedule      string
	ExpiredCleanupSchedule string
	ClickRetentionDays     int
}

// TrackingConfig bounds click tracking per client IP and short link.
type TrackingConfig struct {
	WindowSeconds      int
	MaxClicksPerWindow int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables only.
func Load() (Config, error) {
	return LoadWithFile("")
}

// LoadWithFile applies an optional YAML overlay, then environment variables on top.
func LoadWithFile(path string) (Config, error) {
	src := source{file: map[string]string{}}
	if strings.TrimSpace(path) != "" {
		values, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = values
	}

	env := strings.ToLower(src.get("ENVIRONMENT", "development"))
	cfg := Config{
		Server: ServerConfig{
			Host:    src.get("SERVER_HOST", "0.0.0.0"),
			Port:    src.getInt("SERVER_PORT", 8080),
			BaseURL: strings.TrimRight(src.get("SERVER_BASE_URL", "http://localhost:8080"), "/"),
		},
		Database: DatabaseConfig{
			URL:            src.get("DATABASE_URL", ""),
			MaxConnections: src.getInt("DATABASE_MAX_CONNECTIONS", 20),
		},
		Auth: AuthConfig{
			BaaSURL:        strings.TrimRight(src.get("BAAS_URL", ""), "/"),
			AnonKey:        src.get("BAAS_ANON_KEY", ""),
			ServiceRoleKey: src.get("BAAS_SERVICE_ROLE_KEY", ""),
			JWTSecret:      src.get("BAAS_JWT_SECRET", ""),
			SecretKey:      src.get("SECRET_KEY", ""),
			SessionMaxAge:  time.Duration(src.getInt("SESSION_MAX_AGE_DAYS", 30)) * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:    src.getInt("RATE_LIMIT_PUBLIC", 60),
			APIPerMinute:       src.getInt("RATE_LIMIT_API", 120),
			TrackingPerMinute:  src.getInt("RATE_LIMIT_TRACKING", 30),
			SensitivePerMinute: src.getInt("RATE_LIMIT_SENSITIVE", 10),
			AuthPerMinute:      src.getInt("RATE_LIMIT_AUTH", 20),
			TrustedProxyCIDRs:  splitList(src.get("TRUSTED_PROXY_CIDRS", "")),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(src.get("CORS_ALLOWED_ORIGINS", "")),
		},
		CMS: CMSConfig{
			URL:      strings.TrimRight(src.get("CMS_URL", ""), "/"),
			Token:    src.get("CMS_TOKEN", ""),
			CacheTTL: time.Duration(src.getInt("CMS_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Email: EmailConfig{
			Enabled:      src.getBool("EMAIL_ENABLED", false),
			From:         src.get("EMAIL_FROM", "Punktual <no-reply@punktual.app>"),
			ResendAPIKey: src.get("RESEND_API_KEY", ""),
		},
		Tracing: TracingConfig{
			Enabled:      src.getBool("TRACING_ENABLED", false),
			Exporter:     src.get("TRACING_EXPORTER", "stdout"),
			ServiceName:  src.get("TRACING_SERVICE_NAME", "punktual-server"),
			OTLPEndpoint: src.get("OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   src.getFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Jobs: JobsConfig{
			Enabled:                src.getBool("JOBS_ENABLED", true),
			RetentionSchedule:      src.get("JOB_CLICK_RETENTION_SCHEDULE", "0 3 * * *"),
			ExpiredCleanupSchedule: src.get("JOB_EXPIRED_CLEANUP_SCHEDULE", "*/30 * * * *"),
			ClickRetentionDays:     src.getInt("CLICK_RETENTION_DAYS", 90),
		},
		Tracking: TrackingConfig{
			WindowSeconds:      src.getInt("TRACKING_WINDOW_SECONDS", 60),
			MaxClicksPerWindow: src.getInt("TRACKING_MAX_CLICKS", 10),
		},
		Logging: LoggingConfig{
			Level:  src.get("LOG_LEVEL", "info"),
			Format: src.get("LOG_FORMAT", "json"),
		},
		Environment: env,
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("BAAS_JWT_SECRET is required")
	}

	if cfg.IsProduction() {
		if len(cfg.CORS.AllowedOrigins) == 0 {
			return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return Config{}, fmt.Errorf("SECRET_KEY must be at least 32 bytes in production")
		}
	} else {
		cfg.CORS.AllowAllOrigins = len(cfg.CORS.AllowedOrigins) == 0
		if cfg.Auth.SecretKey == "" {
			cfg.Auth.SecretKey = cfg.Auth.JWTSecret
		}
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// source resolves a key from the environment first, then the file overlay.
type source struct {
	file map[string]string
}

func (s source) get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return fallback
}

func (s source) getInt(key string, fallback int) int {
	value := s.get(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getFloat(key string, fallback float64) float64 {
	value := s.get(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getBool(key string, fallback bool) bool {
	value := s.get(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
