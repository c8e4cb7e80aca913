package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Cookie       CookieConfig
	Session      SessionConfig
	Verification VerificationConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	Debug                 bool
	APIPrefix             string
}

// PostgresConfig holds DB connection values. An empty DSN disables session auditing to the database.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the session cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	TimeoutMS int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines local credential parameters.
type AuthConfig struct {
	// JWTSecret signs access and refresh credentials. Empty disables local token issuance.
	JWTSecret              string
	AccessTokenTTLMinutes  int
	RefreshTokenTTLMinutes int
	// LocalSubject and LocalSecretHash enable the development credential gate.
	LocalSubject    string
	LocalSecretHash string
}

// CookieConfig names the session cookies and their shared attributes.
type CookieConfig struct {
	AccessName          string
	RefreshName         string
	CSRFName            string
	CSRFHeader          string
	ExternalSessionName string
	SameSite            string
	Secure              bool
	ExternalMaxAgeSec   int
}

// SessionConfig controls the session cache and validation policy.
type SessionConfig struct {
	TTLSeconds    int
	CacheFailOpen bool
	ValidateMode  string
}

// VerificationConfig describes the external session-verification endpoint.
type VerificationConfig struct {
	URL            string
	TimeoutSeconds float64
	MaxConnections int
	MaxKeepAlive   int

	JWTSecret     string
	JWTPrivateKey string
	JWTAlg        string
	JWTIssuer     string
	JWTAudience   string
	StaticToken   string
	AssertionTTL  time.Duration
}

// RateLimitConfig throttles login attempts per client IP.
type RateLimitConfig struct {
	LoginRequests  int
	LoginWindowSec int
	LoginBurst     int
}

// CORSConfig is applied only when the app runs in debug mode.
type CORSConfig struct {
	AllowedOrigins string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	timeout, err := strconv.ParseFloat(getEnv("VERIFY_TIMEOUT_SECONDS", "6"), 64)
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid VERIFY_TIMEOUT_SECONDS: %q", os.Getenv("VERIFY_TIMEOUT_SECONDS"))
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "session-bff"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 15),
			Debug:                 getEnvAsBool("BFF_DEBUG", false),
			APIPrefix:             normalizePrefix(getEnv("API_PREFIX", "/api")),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			PoolSize:  getEnvAsInt("REDIS_POOL_SIZE", 10),
			TimeoutMS: getEnvAsInt("REDIS_TIMEOUT_MS", 500),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              os.Getenv("AUTH_JWT_SECRET"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 30),
			RefreshTokenTTLMinutes: getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_MINUTES", 43200),
			LocalSubject:           os.Getenv("AUTH_LOCAL_SUBJECT"),
			LocalSecretHash:        os.Getenv("AUTH_LOCAL_SECRET_HASH"),
		},
		Cookie: CookieConfig{
			AccessName:          getEnv("COOKIE_ACCESS_NAME", "access_token"),
			RefreshName:         getEnv("COOKIE_REFRESH_NAME", "refresh_token"),
			CSRFName:            getEnv("COOKIE_CSRF_NAME", "csrf-token"),
			CSRFHeader:          getEnv("CSRF_HEADER_NAME", "X-CSRF-Token"),
			ExternalSessionName: getEnv("SESSION_COOKIE", "jsessionid"),
			SameSite:            normalizeSameSite(getEnv("SESSION_SAMESITE", "Lax")),
			Secure:              getEnvAsBool("SESSION_SECURE", false),
			ExternalMaxAgeSec:   getEnvAsInt("SESSION_COOKIE_MAX_AGE_SECONDS", 86400),
		},
		Session: SessionConfig{
			TTLSeconds:    getEnvAsInt("SESSION_TTL", 86400),
			CacheFailOpen: getEnvAsBool("SESSION_CACHE_FAIL_OPEN", true),
			ValidateMode:  strings.ToLower(getEnv("SESSION_VALIDATE_MODE", "upstream")),
		},
		Verification: VerificationConfig{
			URL:            os.Getenv("VERIFY_URL"),
			TimeoutSeconds: timeout,
			MaxConnections: getEnvAsInt("VERIFY_MAX_CONNECTIONS", 50),
			MaxKeepAlive:   getEnvAsInt("VERIFY_MAX_KEEPALIVE", 10),
			JWTSecret:      os.Getenv("VERIFY_JWT_SECRET"),
			JWTPrivateKey:  os.Getenv("VERIFY_JWT_PRIVATE_KEY"),
			JWTAlg:         strings.ToUpper(getEnv("VERIFY_JWT_ALG", "HS256")),
			JWTIssuer:      getEnv("VERIFY_JWT_ISS", "session-bff"),
			JWTAudience:    getEnv("VERIFY_JWT_AUD", "verification-service"),
			StaticToken:    os.Getenv("VERIFY_JWT"),
			AssertionTTL:   time.Duration(getEnvAsInt("VERIFY_JWT_TTL_SECONDS", 120)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			LoginRequests:  getEnvAsInt("RATELIMIT_LOGIN_REQUESTS", 10),
			LoginWindowSec: getEnvAsInt("RATELIMIT_LOGIN_WINDOW_SEC", 60),
			LoginBurst:     getEnvAsInt("RATELIMIT_LOGIN_BURST", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ORIGINS", "http://localhost:5173"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cookie.SameSite {
	case "Lax", "Strict", "None":
	default:
		return fmt.Errorf("invalid SESSION_SAMESITE: %q", c.Cookie.SameSite)
	}
	if c.Cookie.SameSite == "None" && !c.Cookie.Secure {
		return fmt.Errorf("SESSION_SAMESITE=None requires SESSION_SECURE=true")
	}
	switch c.Session.ValidateMode {
	case "upstream", "presence":
	default:
		return fmt.Errorf("invalid SESSION_VALIDATE_MODE: %q", c.Session.ValidateMode)
	}
	if c.Session.TTLSeconds <= 0 {
		return fmt.Errorf("invalid SESSION_TTL: %d", c.Session.TTLSeconds)
	}
	if c.Auth.AccessTokenTTLMinutes <= 0 || c.Auth.RefreshTokenTTLMinutes <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if (c.Auth.LocalSubject == "") != (c.Auth.LocalSecretHash == "") {
		return fmt.Errorf("AUTH_LOCAL_SUBJECT and AUTH_LOCAL_SECRET_HASH must be set together")
	}
	if c.Verification.URL == "" && !c.App.Debug && c.Auth.LocalSubject == "" {
		return fmt.Errorf("VERIFY_URL is required unless BFF_DEBUG or a local credential gate is configured")
	}
	return nil
}

func normalizePrefix(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTTL returns the access credential lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh credential lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLMinutes) * time.Minute
}

// TTL returns the session cache entry lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Timeout returns the per-call deadline for the verification service.
func (v VerificationConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSeconds * float64(time.Second))
}

// Timeout returns the per-command deadline for Redis.
func (r RedisConfig) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// Window returns the login rate limit window.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.LoginWindowSec) * time.Second
}

func normalizeSameSite(v string) string {
	switch strings.ToLower(v) {
	case "lax":
		return "Lax"
	case "strict":
		return "Strict"
	case "none":
		return "None"
	}
	return v
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
