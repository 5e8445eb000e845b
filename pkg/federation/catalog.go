package federation

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"gopkg.in/yaml.v3"
)

// Catalog is the optional YAML file overriding provider endpoints and scopes.
// Secrets are never read from it.
//
//	providers:
//	  - name: linkedin
//	    scopes: [openid, profile, email]
type Catalog struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadCatalog reads a catalog file. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}
	for _, p := range c.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider catalog entry without name")
		}
	}
	return &c, nil
}

// Apply overlays non-empty catalog fields onto base
func (c *Catalog) Apply(base *ProviderConfig) {
	for _, o := range c.Providers {
		if o.Name != base.Name {
			continue
		}
		if o.ClientID != "" {
			base.ClientID = o.ClientID
		}
		if o.AuthURL != "" {
			base.AuthURL = o.AuthURL
		}
		if o.TokenURL != "" {
			base.TokenURL = o.TokenURL
		}
		if o.UserInfoURL != "" {
			base.UserInfoURL = o.UserInfoURL
		}
		if o.EmailURL != "" {
			base.EmailURL = o.EmailURL
		}
		if o.IssuerURL != "" {
			base.IssuerURL = o.IssuerURL
		}
		if o.RedirectURL != "" {
			base.RedirectURL = o.RedirectURL
		}
		if len(o.Scopes) > 0 {
			base.Scopes = o.Scopes
		}
	}
}

// Credentials are the per-provider secrets coming from the environment
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// RegistryOptions drives BuildRegistry
type RegistryOptions struct {
	// CallbackBaseURL is the public origin; callbacks land on {base}/auth/{provider}/callback
	CallbackBaseURL string
	Credentials     map[identity.ProviderName]Credentials
	Catalog         *Catalog
	HTTPClient      *http.Client
	// VerifyIDTokens enables OIDC discovery for Google at startup
	VerifyIDTokens bool
}

// BuildRegistry assembles the Google and LinkedIn providers. Missing
// credentials surface as a ConfigurationError.
func BuildRegistry(ctx context.Context, opts RegistryOptions) (*Registry, error) {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = &Catalog{}
	}

	configFor := func(name identity.ProviderName) (*ProviderConfig, error) {
		cfg, err := GetPresetConfig(name)
		if err != nil {
			return nil, err
		}
		creds := opts.Credentials[name]
		cfg.ClientID = creds.ClientID
		cfg.ClientSecret = creds.ClientSecret
		cfg.RedirectURL = CallbackURL(opts.CallbackBaseURL, name)
		catalog.Apply(cfg)
		return cfg, nil
	}

	googleCfg, err := configFor(identity.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	if err := googleCfg.Validate(); err != nil {
		return nil, err
	}
	var verifier *oidc.IDTokenVerifier
	if opts.VerifyIDTokens {
		v, err := DiscoverGoogleVerifier(ctx, googleCfg, opts.HTTPClient)
		if err != nil {
			return nil, err
		}
		verifier = v
	}
	google, err := NewGoogleProvider(googleCfg, opts.HTTPClient, verifier)
	if err != nil {
		return nil, err
	}

	linkedinCfg, err := configFor(identity.ProviderLinkedIn)
	if err != nil {
		return nil, err
	}
	linkedin, err := NewLinkedInProvider(linkedinCfg, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	return NewRegistry(google, linkedin), nil
}

// CallbackURL returns the redirect URI registered with a provider
func CallbackURL(baseURL string, name identity.ProviderName) string {
	return fmt.Sprintf("%s/auth/%s/callback", strings.TrimRight(baseURL, "/"), name)
}
