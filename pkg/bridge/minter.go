package bridge

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/platinummonkey/partnerauth/pkg/identity"
)

// DefaultTTL is the lifetime of every bridging token
const DefaultTTL = 24 * time.Hour

// Audience and role expected by the managed-auth backend
const (
	Audience = "authenticated"
	Role     = "authenticated"
)

// Claims is the claim set of a bridging token
type Claims struct {
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Minter signs bridging tokens with the secret shared with the managed-auth backend
type Minter struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a Minter
type Option func(*Minter)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(m *Minter) { m.now = now }
}

// WithIssuer sets the iss claim
func WithIssuer(issuer string) Option {
	return func(m *Minter) { m.issuer = issuer }
}

// NewMinter creates a minter. An empty secret is a startup failure.
func NewMinter(secret string, opts ...Option) (*Minter, error) {
	if secret == "" {
		return nil, &identity.SigningError{Err: &identity.ConfigurationError{Component: "bridge", Field: "jwt secret"}}
	}

	m := &Minter{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Subject returns the provider-namespaced subject for an identity
func Subject(ext *identity.ExternalIdentity) string {
	return fmt.Sprintf("oauth_%s_%s", ext.Provider, ext.SubjectID)
}

// Mint builds and signs the bridging token for a verified identity.
// The output depends only on the identity and the clock.
func (m *Minter) Mint(ext *identity.ExternalIdentity) (*identity.BridgingToken, error) {
	if ext == nil || ext.SubjectID == "" {
		return nil, &identity.SigningError{Err: fmt.Errorf("identity subject is required")}
	}
	email := identity.NormalizeEmail(ext.Email)
	if email == "" {
		return nil, &identity.SigningError{Err: identity.ErrMissingEmail}
	}

	issuedAt := m.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(DefaultTTL)

	userMetadata := map[string]interface{}{
		"provider":    string(ext.Provider),
		"provider_id": ext.SubjectID,
		"first_name":  ext.FirstName,
		"last_name":   ext.LastName,
		"full_name":   ext.FullName(),
	}
	if ext.AvatarURL != "" {
		userMetadata["avatar_url"] = ext.AvatarURL
	}
	appMetadata := map[string]interface{}{
		"provider":  string(ext.Provider),
		"providers": []string{string(ext.Provider)},
	}

	claims := Claims{
		Email:        email,
		Role:         Role,
		UserMetadata: userMetadata,
		AppMetadata:  appMetadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject(ext),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, &identity.SigningError{Err: err}
	}

	return &identity.BridgingToken{
		Subject:   claims.Subject,
		Email:     email,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Metadata:  userMetadata,
		Raw:       signed,
	}, nil
}
