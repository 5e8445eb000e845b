package usersync

import "github.com/platinummonkey/partnerauth/pkg/identity"

// SyncRequest is the body of POST /api/auth/sync-supabase-user
type SyncRequest struct {
	SupabaseUser *identity.ManagedSessionUser `json:"supabaseUser"`
	RetryBudget  RetryBudget                  `json:"retryBudget"`
}

// SyncResponse is the reply of the sync endpoint. On failure Success is
// false, Error names the problem and Surface tells the client whether to
// show a connectivity message.
type SyncResponse struct {
	Success     bool                      `json:"success"`
	User        *identity.LocalUserRecord `json:"user,omitempty"`
	Created     bool                      `json:"created,omitempty"`
	Error       string                    `json:"error,omitempty"`
	RetryBudget *RetryBudget              `json:"retryBudget,omitempty"`
	Surface     bool                      `json:"surface,omitempty"`
}
