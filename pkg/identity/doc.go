// Package identity defines the data model shared by the federation subsystem:
// external identities asserted by providers, bridging tokens, the canonical
// local user record and the error taxonomy used across packages.
//
// # Sources
//
// Both ExternalIdentity and ManagedSessionUser implement Source, so user sync
// accepts either a freshly federated identity or a managed-auth session user:
//
//	var src identity.Source = &identity.ExternalIdentity{Provider: identity.ProviderGoogle, Email: "a@x.com"}
//	profile := src.Profile()
//
// # Errors
//
// Provider failures are TokenExchangeError, IdentityFetchError or
// UpstreamTimeout. Local failures are SyncError, SigningError and
// SessionConflictError. ConfigurationError is only produced at startup.
package identity
