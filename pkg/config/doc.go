// Package config loads the service configuration from environment variables.
//
// Every variable carries the PARTNERAUTH_ prefix:
//
//	PARTNERAUTH_PORT="8080"
//	PARTNERAUTH_HEALTH_PORT="9090"
//	PARTNERAUTH_UPSTREAM_TIMEOUT="10s"
//
//	PARTNERAUTH_GOOGLE_CLIENT_ID / PARTNERAUTH_GOOGLE_CLIENT_SECRET
//	PARTNERAUTH_LINKEDIN_CLIENT_ID / PARTNERAUTH_LINKEDIN_CLIENT_SECRET
//	PARTNERAUTH_OAUTH_CALLBACK_BASE_URL="https://auth.example.com"
//	PARTNERAUTH_CLIENT_REDIRECT_URL="https://app.example.com/auth"
//	PARTNERAUTH_PROVIDERS_FILE="/etc/partnerauth/providers.yaml"
//
//	PARTNERAUTH_JWT_SECRET
//	PARTNERAUTH_COOKIE_DOMAIN=".example.com"   # required with Postgres
//	PARTNERAUTH_POSTGRES_URL, PARTNERAUTH_REDIS_URL
//	PARTNERAUTH_MEMORY_STORE="true"            # development only
//	PARTNERAUTH_SYNC_ALLOW_UNVERIFIED="true"   # development only, needs MEMORY_STORE
//
// Missing provider credentials, the signing secret or the cookie domain make
// Validate return an *identity.ConfigurationError, which stops the service
// at startup.
package config
