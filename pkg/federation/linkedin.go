package federation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// LinkedInProvider federates LinkedIn members. The profile and the email
// address live behind separate endpoints and both calls must succeed.
type LinkedInProvider struct {
	config       *ProviderConfig
	oauth2Config *oauth2.Config
	client       *http.Client
}

type linkedInProfile struct {
	ID                 string `json:"id"`
	LocalizedFirstName string `json:"localizedFirstName"`
	LocalizedLastName  string `json:"localizedLastName"`
	ProfilePicture     struct {
		DisplayImage struct {
			Elements []struct {
				Identifiers []struct {
					Identifier string `json:"identifier"`
				} `json:"identifiers"`
			} `json:"elements"`
		} `json:"displayImage~"`
	} `json:"profilePicture"`
}

// avatar picks the last (largest) rendition
func (p *linkedInProfile) avatar() string {
	elements := p.ProfilePicture.DisplayImage.Elements
	if len(elements) == 0 {
		return ""
	}
	ids := elements[len(elements)-1].Identifiers
	if len(ids) == 0 {
		return ""
	}
	return ids[0].Identifier
}

type linkedInEmails struct {
	Elements []struct {
		Handle struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"handle~"`
	} `json:"elements"`
}

func (e *linkedInEmails) primary() string {
	for _, el := range e.Elements {
		if addr := strings.TrimSpace(el.Handle.EmailAddress); addr != "" {
			return addr
		}
	}
	return ""
}

// NewLinkedInProvider creates the LinkedIn provider
func NewLinkedInProvider(config *ProviderConfig, client *http.Client) (*LinkedInProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.EmailURL == "" {
		return nil, &identity.ConfigurationError{Component: "linkedin provider", Field: "email_url"}
	}
	return &LinkedInProvider{
		config:       config,
		oauth2Config: config.oauth2Config(),
		client:       client,
	}, nil
}

// Name implements Provider
func (p *LinkedInProvider) Name() identity.ProviderName {
	return identity.ProviderLinkedIn
}

// AuthorizationURL implements Provider
func (p *LinkedInProvider) AuthorizationURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// ExchangeCode implements Provider
func (p *LinkedInProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, p.Name(), p.oauth2Config, p.client, code)
}

// FetchIdentity implements Provider. A profile without an email is a failure.
func (p *LinkedInProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*identity.ExternalIdentity, error) {
	var (
		profile linkedInProfile
		emails  linkedInEmails
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return getJSON(gctx, p.Name(), p.client, token, p.config.UserInfoURL, &profile)
	})
	g.Go(func() error {
		return getJSON(gctx, p.Name(), p.client, token, p.config.EmailURL, &emails)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if profile.ID == "" {
		return nil, &identity.IdentityFetchError{Provider: p.Name(), Endpoint: p.config.UserInfoURL, Err: fmt.Errorf("missing member id")}
	}
	email := emails.primary()
	if email == "" {
		return nil, &identity.IdentityFetchError{Provider: p.Name(), Endpoint: p.config.EmailURL, Err: identity.ErrMissingEmail}
	}

	return &identity.ExternalIdentity{
		Provider:  p.Name(),
		SubjectID: profile.ID,
		Email:     email,
		FirstName: profile.LocalizedFirstName,
		LastName:  profile.LocalizedLastName,
		AvatarURL: profile.avatar(),
	}, nil
}
