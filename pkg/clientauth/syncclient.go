package clientauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/usersync"
)

// SyncPath is the server route of the sync endpoint
const SyncPath = "/api/auth/sync-supabase-user"

// SyncOutcome is what the client learns from one sync call
type SyncOutcome struct {
	User    *identity.LocalUserRecord
	Created bool
	Budget  usersync.RetryBudget
	Surface bool
}

// Syncer reconciles the session user with the local user store
type Syncer interface {
	Sync(ctx context.Context, user *identity.ManagedSessionUser, budget usersync.RetryBudget) (*SyncOutcome, error)
}

// SyncClient calls the sync endpoint over HTTP
type SyncClient struct {
	baseURL    string
	httpClient *http.Client
	token      func(ctx context.Context) string
}

// SyncClientOption configures a SyncClient
type SyncClientOption func(*SyncClient)

// WithBearerToken sets the source of the managed-auth access token sent as
// Authorization header
func WithBearerToken(fn func(ctx context.Context) string) SyncClientOption {
	return func(c *SyncClient) {
		c.token = fn
	}
}

// NewSyncClient creates a client for the service at baseURL
func NewSyncClient(baseURL string, httpClient *http.Client, opts ...SyncClientOption) *SyncClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &SyncClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync posts the session user with the held budget. The returned outcome is
// never nil and always carries the budget to hold for the next call. A
// request that never got an answer counts as a failure locally.
func (c *SyncClient) Sync(ctx context.Context, user *identity.ManagedSessionUser, budget usersync.RetryBudget) (*SyncOutcome, error) {
	out := &SyncOutcome{Budget: budget}

	body, err := json.Marshal(usersync.SyncRequest{SupabaseUser: user, RetryBudget: budget})
	if err != nil {
		return out, fmt.Errorf("failed to encode sync request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SyncPath, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("failed to build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		out.Budget = budget.RecordFailure()
		out.Surface = out.Budget.ShouldSurface()
		return out, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload usersync.SyncResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil {
		err = json.Unmarshal(raw, &payload)
	}
	if err != nil {
		out.Budget = budget.RecordFailure()
		out.Surface = out.Budget.ShouldSurface()
		return out, fmt.Errorf("failed to decode sync response (status %d): %w", resp.StatusCode, err)
	}

	if payload.RetryBudget != nil {
		out.Budget = *payload.RetryBudget
	}
	if resp.StatusCode != http.StatusOK || !payload.Success {
		out.Surface = payload.Surface
		return out, fmt.Errorf("sync rejected with status %d: %s", resp.StatusCode, payload.Error)
	}

	out.User = payload.User
	out.Created = payload.Created
	out.Budget = budget.Reset()
	return out, nil
}
