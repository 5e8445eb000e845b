package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
)

// EnvPrefix prefixes every environment variable read by this package
const EnvPrefix = "PARTNERAUTH_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	OAuth         OAuthConfig
	Bridge        BridgeConfig
	Session       SessionConfig
	Storage       StorageConfig
	HTTP          HTTPConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// UpstreamTimeout bounds one provider exchange plus identity fetch
	UpstreamTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// OAuthConfig holds provider credentials and redirect targets
type OAuthConfig struct {
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleVerifyIDToken  bool
	LinkedInClientID     string
	LinkedInClientSecret string
	// CallbackBaseURL is the public origin of this service
	CallbackBaseURL string
	// ClientRedirectURL receives ?jwt= or ?error= after a callback
	ClientRedirectURL string
	// ProvidersFile optionally overrides provider endpoints and scopes
	ProvidersFile string
}

// BridgeConfig holds bridging token settings. The token lifetime is fixed.
type BridgeConfig struct {
	JWTSecret string
	// SyncAllowUnverified accepts sync calls without a managed-auth bearer
	// token; only valid together with the in-memory development stores
	SyncAllowUnverified bool
}

// SessionConfig holds cookie and session settings
type SessionConfig struct {
	CookieDomain      string
	LegacyCookieName  string
	SessionCookieName string
	TTL               time.Duration
	CookieSecure      bool
}

// StorageConfig holds database and cache connection settings
type StorageConfig struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
	RedisURL         string
	RedisPoolSize    int
	// MemoryStore keeps users and sessions in process; for local development
	MemoryStore bool
}

// HTTPConfig holds cross-cutting HTTP settings
type HTTPConfig struct {
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Load reads the environment without validating
func Load() *Config {
	return &Config{
		Server:        loadServerConfig(),
		OAuth:         loadOAuthConfig(),
		Bridge:        loadBridgeConfig(),
		Session:       loadSessionConfig(),
		Storage:       loadStorageConfig(),
		HTTP:          loadHTTPConfig(),
		Observability: loadObservabilityConfig(),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),
	}
}

func loadOAuthConfig() OAuthConfig {
	return OAuthConfig{
		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleVerifyIDToken:  getEnvBool("GOOGLE_VERIFY_ID_TOKEN", false),
		LinkedInClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedInClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		CallbackBaseURL:      getEnv("OAUTH_CALLBACK_BASE_URL", "http://localhost:8080"),
		ClientRedirectURL:    getEnv("CLIENT_REDIRECT_URL", "http://localhost:3000/auth"),
		ProvidersFile:        getEnv("PROVIDERS_FILE", ""),
	}
}

func loadBridgeConfig() BridgeConfig {
	return BridgeConfig{
		JWTSecret:           getEnv("JWT_SECRET", ""),
		SyncAllowUnverified: getEnvBool("SYNC_ALLOW_UNVERIFIED", false),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		CookieDomain:      getEnv("COOKIE_DOMAIN", ""),
		LegacyCookieName:  getEnv("LEGACY_COOKIE_NAME", "PHPSESSID"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "partnerauth_session"),
		TTL:               getEnvDuration("SESSION_TTL", 24*time.Hour),
		CookieSecure:      getEnvBool("COOKIE_SECURE", true),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:      getEnv("POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("POSTGRES_MAX_CONNS", 20),
		PostgresMinConns: getEnvInt("POSTGRES_MIN_CONNS", 2),
		PostgresTimeout:  getEnvDuration("POSTGRES_TIMEOUT", 5*time.Second),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisPoolSize:    getEnvInt("REDIS_POOL_SIZE", 10),
		MemoryStore:      getEnvBool("MEMORY_STORE", false),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "partnerauth"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid. Missing credentials and
// secrets are reported as *identity.ConfigurationError.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}

	required := []struct {
		component, field, value string
	}{
		{"google", EnvPrefix + "GOOGLE_CLIENT_ID", c.OAuth.GoogleClientID},
		{"google", EnvPrefix + "GOOGLE_CLIENT_SECRET", c.OAuth.GoogleClientSecret},
		{"linkedin", EnvPrefix + "LINKEDIN_CLIENT_ID", c.OAuth.LinkedInClientID},
		{"linkedin", EnvPrefix + "LINKEDIN_CLIENT_SECRET", c.OAuth.LinkedInClientSecret},
		{"bridge", EnvPrefix + "JWT_SECRET", c.Bridge.JWTSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &identity.ConfigurationError{Component: r.component, Field: r.field}
		}
	}
	if c.Bridge.SyncAllowUnverified && !c.Storage.MemoryStore {
		return fmt.Errorf("%sSYNC_ALLOW_UNVERIFIED is only allowed with %sMEMORY_STORE", EnvPrefix, EnvPrefix)
	}

	for name, raw := range map[string]string{
		"oauth callback base URL": c.OAuth.CallbackBaseURL,
		"client redirect URL":     c.OAuth.ClientRedirectURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL: %q", name, raw)
		}
	}

	if !c.Storage.MemoryStore && c.Storage.PostgresURL == "" {
		return &identity.ConfigurationError{Component: "storage", Field: EnvPrefix + "POSTGRES_URL"}
	}
	// a host-only cookie cannot expire the legacy cookie on the parent domain
	if !c.Storage.MemoryStore && strings.TrimSpace(c.Session.CookieDomain) == "" {
		return &identity.ConfigurationError{Component: "session", Field: EnvPrefix + "COOKIE_DOMAIN"}
	}
	if c.Storage.PostgresMinConns > c.Storage.PostgresMaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", c.Storage.PostgresMinConns, c.Storage.PostgresMaxConns)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Session.LegacyCookieName == c.Session.SessionCookieName {
		return fmt.Errorf("legacy and session cookie names must differ")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr is the listen address of the main server
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr is the listen address of the health and metrics server
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns the prefixed environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(EnvPrefix+key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
