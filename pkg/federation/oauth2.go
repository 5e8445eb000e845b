package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"golang.org/x/oauth2"
)

// maxBodyBytes caps how much of a provider response is read
const maxBodyBytes = 1 << 20

// exchange runs the token request and converts failures into the error taxonomy
func exchange(ctx context.Context, name identity.ProviderName, cfg *oauth2.Config, client *http.Client, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, &identity.TokenExchangeError{Provider: name, Err: fmt.Errorf("missing authorization code")}
	}

	token, err := cfg.Exchange(withHTTPClient(ctx, client), code)
	if err == nil {
		return token, nil
	}

	if isTimeout(ctx, err) {
		return nil, &identity.UpstreamTimeout{Provider: name, Operation: "token exchange", Err: err}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		exErr := &identity.TokenExchangeError{
			Provider:  name,
			ErrorCode: retrieveErr.ErrorCode,
			Body:      string(retrieveErr.Body),
			Err:       err,
		}
		if retrieveErr.Response != nil {
			exErr.StatusCode = retrieveErr.Response.StatusCode
		}
		if exErr.ErrorCode == "" {
			exErr.ErrorCode = errorCodeFromBody(retrieveErr.Body)
		}
		return nil, exErr
	}

	return nil, &identity.TokenExchangeError{Provider: name, Err: err}
}

// errorCodeFromBody extracts the RFC 6749 "error" field when the oauth2
// package could not parse it
func errorCodeFromBody(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}

// getJSON performs an authenticated GET against a provider API
func getJSON(ctx context.Context, name identity.ProviderName, client *http.Client, token *oauth2.Token, endpoint string, dest interface{}) error {
	authed := oauth2.NewClient(withHTTPClient(ctx, client), oauth2.StaticTokenSource(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &identity.IdentityFetchError{Provider: name, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := authed.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return &identity.UpstreamTimeout{Provider: name, Operation: "identity fetch", Err: err}
		}
		return &identity.IdentityFetchError{Provider: name, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &identity.IdentityFetchError{Provider: name, Endpoint: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &identity.IdentityFetchError{
			Provider: name,
			Endpoint: endpoint,
			Err:      fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body)),
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return &identity.IdentityFetchError{Provider: name, Endpoint: endpoint, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

