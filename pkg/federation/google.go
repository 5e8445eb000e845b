package federation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"golang.org/x/oauth2"
)

// GoogleProvider federates Google accounts. When the token response carries an
// id_token and a verifier is configured, the verified claims are used and the
// userinfo call is skipped.
type GoogleProvider struct {
	config       *ProviderConfig
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	client       *http.Client
}

// googleClaims are the OIDC claims read from id_token or userinfo
type googleClaims struct {
	Subject       string      `json:"sub"`
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"`
	GivenName     string      `json:"given_name"`
	FamilyName    string      `json:"family_name"`
	Picture       string      `json:"picture"`
}

// verified handles email_verified as bool or string ("true")
func (c *googleClaims) verified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	case nil:
		return true
	}
	return false
}

// NewGoogleProvider creates the Google provider. verifier may be nil.
func NewGoogleProvider(config *ProviderConfig, client *http.Client, verifier *oidc.IDTokenVerifier) (*GoogleProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &GoogleProvider{
		config:       config,
		oauth2Config: config.oauth2Config(),
		verifier:     verifier,
		client:       client,
	}, nil
}

// DiscoverGoogleVerifier resolves the issuer's signing keys for id_token verification
func DiscoverGoogleVerifier(ctx context.Context, config *ProviderConfig, client *http.Client) (*oidc.IDTokenVerifier, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("issuer_url is required for id_token verification")
	}
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: config.ClientID}), nil
}

// Name implements Provider
func (p *GoogleProvider) Name() identity.ProviderName {
	return identity.ProviderGoogle
}

// AuthorizationURL implements Provider
func (p *GoogleProvider) AuthorizationURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// ExchangeCode implements Provider
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, p.Name(), p.oauth2Config, p.client, code)
}

// FetchIdentity implements Provider
func (p *GoogleProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*identity.ExternalIdentity, error) {
	claims, err := p.idTokenClaims(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims == nil || claims.Email == "" {
		claims = &googleClaims{}
		if err := getJSON(ctx, p.Name(), p.client, token, p.config.UserInfoURL, claims); err != nil {
			return nil, err
		}
	}

	if claims.Subject == "" {
		return nil, &identity.IdentityFetchError{Provider: p.Name(), Endpoint: p.config.UserInfoURL, Err: fmt.Errorf("missing sub claim")}
	}
	if claims.Email == "" || !claims.verified() {
		return nil, &identity.IdentityFetchError{Provider: p.Name(), Endpoint: p.config.UserInfoURL, Err: identity.ErrMissingEmail}
	}

	return &identity.ExternalIdentity{
		Provider:  p.Name(),
		SubjectID: claims.Subject,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		AvatarURL: claims.Picture,
	}, nil
}

func (p *GoogleProvider) idTokenClaims(ctx context.Context, token *oauth2.Token) (*googleClaims, error) {
	if p.verifier == nil {
		return nil, nil
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, nil
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &identity.IdentityFetchError{Provider: p.Name(), Endpoint: "id_token", Err: fmt.Errorf("failed to verify ID token: %w", err)}
	}

	claims := &googleClaims{}
	if err := idToken.Claims(claims); err != nil {
		return nil, &identity.IdentityFetchError{Provider: p.Name(), Endpoint: "id_token", Err: fmt.Errorf("failed to parse claims: %w", err)}
	}
	return claims, nil
}
