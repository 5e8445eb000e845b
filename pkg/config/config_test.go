package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PARTNERAUTH_GOOGLE_CLIENT_ID", "google-id")
	t.Setenv("PARTNERAUTH_GOOGLE_CLIENT_SECRET", "google-secret")
	t.Setenv("PARTNERAUTH_LINKEDIN_CLIENT_ID", "linkedin-id")
	t.Setenv("PARTNERAUTH_LINKEDIN_CLIENT_SECRET", "linkedin-secret")
	t.Setenv("PARTNERAUTH_JWT_SECRET", "a-very-long-shared-signing-secret")
	t.Setenv("PARTNERAUTH_POSTGRES_URL", "postgres://localhost/partnerauth?sslmode=disable")
	t.Setenv("PARTNERAUTH_COOKIE_DOMAIN", ".example.com")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PARTNERAUTH_TEST_STRING", "custom")
	t.Setenv("PARTNERAUTH_TEST_BOOL", "1")
	t.Setenv("PARTNERAUTH_TEST_INT", "42")
	t.Setenv("PARTNERAUTH_TEST_BAD_INT", "forty-two")
	t.Setenv("PARTNERAUTH_TEST_DURATION", "90s")
	t.Setenv("PARTNERAUTH_TEST_LIST", " https://a.example.com, ,https://b.example.com ")

	assert.Equal(t, "custom", getEnv("TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("TEST_STRING_NOT_SET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_BOOL_NOT_SET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, getEnvList("TEST_LIST"))
	assert.Nil(t, getEnvList("TEST_LIST_NOT_SET"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
	assert.Equal(t, 10*time.Second, cfg.Server.UpstreamTimeout)
	assert.False(t, cfg.Bridge.SyncAllowUnverified)
	assert.Equal(t, "PHPSESSID", cfg.Session.LegacyCookieName)
	assert.Equal(t, "partnerauth_session", cfg.Session.SessionCookieName)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, 60, cfg.HTTP.RateLimitPerMinute)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PARTNERAUTH_PORT", "8443")
	t.Setenv("PARTNERAUTH_UPSTREAM_TIMEOUT", "3s")
	t.Setenv("PARTNERAUTH_COOKIE_DOMAIN", ".partners.example.com")
	t.Setenv("PARTNERAUTH_CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("PARTNERAUTH_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8443", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.UpstreamTimeout)
	assert.Equal(t, ".partners.example.com", cfg.Session.CookieDomain)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestValidate_MissingSecrets(t *testing.T) {
	tests := []struct {
		name      string
		unset     string
		component string
	}{
		{"google id", "PARTNERAUTH_GOOGLE_CLIENT_ID", "google"},
		{"google secret", "PARTNERAUTH_GOOGLE_CLIENT_SECRET", "google"},
		{"linkedin id", "PARTNERAUTH_LINKEDIN_CLIENT_ID", "linkedin"},
		{"linkedin secret", "PARTNERAUTH_LINKEDIN_CLIENT_SECRET", "linkedin"},
		{"jwt secret", "PARTNERAUTH_JWT_SECRET", "bridge"},
		{"postgres", "PARTNERAUTH_POSTGRES_URL", "storage"},
		{"cookie domain", "PARTNERAUTH_COOKIE_DOMAIN", "session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := LoadConfig()
			require.Error(t, err)

			var cfgErr *identity.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.component, cfgErr.Component)
			assert.Equal(t, tt.unset, cfgErr.Field)
		})
	}
}

func TestValidate_MemoryStoreNeedsNoPostgres(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PARTNERAUTH_POSTGRES_URL", "")
	t.Setenv("PARTNERAUTH_MEMORY_STORE", "true")
	t.Setenv("PARTNERAUTH_COOKIE_DOMAIN", "")
	t.Setenv("PARTNERAUTH_SYNC_ALLOW_UNVERIFIED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Storage.MemoryStore)
	assert.True(t, cfg.Bridge.SyncAllowUnverified)
}

func TestValidate_UnverifiedSyncNeedsMemoryStore(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PARTNERAUTH_SYNC_ALLOW_UNVERIFIED", "true")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_ALLOW_UNVERIFIED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }},
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"zero upstream timeout", func(c *Config) { c.Server.UpstreamTimeout = 0 }},
		{"relative redirect URL", func(c *Config) { c.OAuth.ClientRedirectURL = "/auth" }},
		{"relative callback base", func(c *Config) { c.OAuth.CallbackBaseURL = "auth.example.com" }},
		{"unverified sync with postgres", func(c *Config) { c.Bridge.SyncAllowUnverified = true }},
		{"host-only cookie with postgres", func(c *Config) { c.Session.CookieDomain = "" }},
		{"same cookie names", func(c *Config) { c.Session.SessionCookieName = c.Session.LegacyCookieName }},
		{"min conns above max", func(c *Config) { c.Storage.PostgresMinConns = c.Storage.PostgresMaxConns + 1 }},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			cfg := Load()
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
