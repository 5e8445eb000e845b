package federation

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"golang.org/x/oauth2"
)

// Provider is the capability set every identity provider implements.
// Callers select one through a Registry and never branch on its name.
type Provider interface {
	// Name returns the provider name used in routes and token subjects
	Name() identity.ProviderName

	// AuthorizationURL builds the provider's authorization endpoint URL.
	// state is optional and omitted from the URL when empty.
	AuthorizationURL(state string) (string, error)

	// ExchangeCode trades a single-use authorization code for tokens
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentity resolves the external identity behind an access token
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*identity.ExternalIdentity, error)
}

// ProviderConfig holds endpoints and credentials for one provider
type ProviderConfig struct {
	Name         identity.ProviderName `yaml:"name"`
	ClientID     string                `yaml:"client_id"`
	ClientSecret string                `yaml:"-"`
	AuthURL      string                `yaml:"auth_url"`
	TokenURL     string                `yaml:"token_url"`
	UserInfoURL  string                `yaml:"userinfo_url"`
	EmailURL     string                `yaml:"email_url,omitempty"`
	IssuerURL    string                `yaml:"issuer_url,omitempty"`
	RedirectURL  string                `yaml:"redirect_url"`
	Scopes       []string              `yaml:"scopes"`
}

// Validate checks the fields every provider needs
func (c *ProviderConfig) Validate() error {
	component := fmt.Sprintf("%s provider", c.Name)
	switch {
	case c.ClientID == "":
		return &identity.ConfigurationError{Component: component, Field: "client_id"}
	case c.ClientSecret == "":
		return &identity.ConfigurationError{Component: component, Field: "client_secret"}
	case c.AuthURL == "":
		return &identity.ConfigurationError{Component: component, Field: "auth_url"}
	case c.TokenURL == "":
		return &identity.ConfigurationError{Component: component, Field: "token_url"}
	case c.UserInfoURL == "":
		return &identity.ConfigurationError{Component: component, Field: "userinfo_url"}
	case c.RedirectURL == "":
		return &identity.ConfigurationError{Component: component, Field: "redirect_url"}
	case len(c.Scopes) == 0:
		return &identity.ConfigurationError{Component: component, Field: "scopes"}
	}
	return nil
}

func (c *ProviderConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: c.RedirectURL,
		Scopes:      c.Scopes,
	}
}

// GetPresetConfig returns the public endpoints of a supported provider.
// Credentials and redirect URL are left for the caller.
func GetPresetConfig(name identity.ProviderName) (*ProviderConfig, error) {
	switch name {
	case identity.ProviderGoogle:
		return &ProviderConfig{
			Name:        identity.ProviderGoogle,
			AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			IssuerURL:   "https://accounts.google.com",
			Scopes:      []string{"openid", "email", "profile"},
		}, nil

	case identity.ProviderLinkedIn:
		return &ProviderConfig{
			Name:        identity.ProviderLinkedIn,
			AuthURL:     "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:    "https://www.linkedin.com/oauth/v2/accessToken",
			UserInfoURL: "https://api.linkedin.com/v2/me?projection=(id,localizedFirstName,localizedLastName,profilePicture(displayImage~:playableStreams))",
			EmailURL:    "https://api.linkedin.com/v2/emailAddress?q=members&projection=(elements*(handle~))",
			Scopes:      []string{"r_liteprofile", "r_emailaddress"},
		}, nil

	default:
		return nil, fmt.Errorf("no preset configuration for provider: %s", name)
	}
}

// Registry is the lookup table from provider name to implementation
type Registry struct {
	providers map[identity.ProviderName]Provider
}

// NewRegistry builds a registry from providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[identity.ProviderName]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name
func (r *Registry) Get(name identity.ProviderName) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", identity.ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in sorted order
func (r *Registry) Names() []identity.ProviderName {
	names := make([]identity.ProviderName, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
