// Package usersync keeps exactly one local user record per normalized email.
//
// SyncUser accepts either a provider identity or a managed-auth session user
// and upserts the record in a single statement keyed on the case-insensitive
// email index, so concurrent logins for the same email cannot create
// duplicates. Account-type capabilities are never removed and the active
// type is never changed by a login.
//
// Transient store failures are retried once inside the call. The caller
// carries a RetryBudget across calls and only surfaces a connectivity error
// once the budget is spent.
package usersync
