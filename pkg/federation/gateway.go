package federation

import (
	"context"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// DefaultUpstreamTimeout bounds one exchange + identity fetch chain
const DefaultUpstreamTimeout = 10 * time.Second

const tracerName = "github.com/platinummonkey/partnerauth/pkg/federation"

// Gateway drives the authorization-code flow for every registered provider
type Gateway struct {
	registry *Registry
	timeout  time.Duration
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewGateway creates a gateway. metrics may be nil.
func NewGateway(registry *Registry, timeout time.Duration, metrics *observability.Metrics) *Gateway {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &Gateway{
		registry: registry,
		timeout:  timeout,
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
	}
}

// Registry returns the provider lookup table
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// BuildAuthorizationURL returns the provider's authorization URL
func (g *Gateway) BuildAuthorizationURL(name identity.ProviderName, state string) (string, error) {
	p, err := g.registry.Get(name)
	if err != nil {
		return "", err
	}
	return p.AuthorizationURL(state)
}

// ExchangeCode trades a code for tokens under the upstream timeout. Codes are
// single use, so failures are never retried here.
func (g *Gateway) ExchangeCode(ctx context.Context, name identity.ProviderName, code string) (*oauth2.Token, error) {
	p, err := g.registry.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "federation.ExchangeCode", trace.WithAttributes(attribute.String("oauth.provider", string(name))))
	defer span.End()

	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "token exchange failed")
		return nil, err
	}
	return token, nil
}

// FetchIdentity resolves the identity behind a token under the upstream timeout
func (g *Gateway) FetchIdentity(ctx context.Context, name identity.ProviderName, token *oauth2.Token) (*identity.ExternalIdentity, error) {
	p, err := g.registry.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "federation.FetchIdentity", trace.WithAttributes(attribute.String("oauth.provider", string(name))))
	defer span.End()

	ext, err := p.FetchIdentity(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "identity fetch failed")
		return nil, err
	}
	return ext, nil
}

// Authenticate runs exchange then identity fetch as one chain sharing a
// single deadline
func (g *Gateway) Authenticate(ctx context.Context, name identity.ProviderName, code string) (*identity.ExternalIdentity, error) {
	start := time.Now()

	p, err := g.registry.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "federation.Authenticate", trace.WithAttributes(attribute.String("oauth.provider", string(name))))
	defer span.End()

	ext, err := g.authenticate(ctx, p, code)
	g.metrics.RecordFederation(string(name), CallbackErrorCode(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, CallbackErrorCode(err))
		return nil, err
	}
	return ext, nil
}

func (g *Gateway) authenticate(ctx context.Context, p Provider, code string) (*identity.ExternalIdentity, error) {
	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return p.FetchIdentity(ctx, token)
}
