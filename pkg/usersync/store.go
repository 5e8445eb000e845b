package usersync

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/identity"
)

// ErrNotFound is returned by lookups for an unknown email
var ErrNotFound = errors.New("user not found")

// Store persists local user records
type Store interface {
	// Upsert creates the record for profile.Email or refreshes its profile
	// fields in one atomic step. profile.Email must already be normalized.
	// The boolean reports whether the record was created.
	Upsert(ctx context.Context, profile identity.Profile, now time.Time) (*identity.LocalUserRecord, bool, error)

	// GetByEmail looks a record up by normalized email
	GetByEmail(ctx context.Context, email string) (*identity.LocalUserRecord, error)
}

// newRecordTypes are the capabilities of a freshly created user
func newRecordTypes() identity.UserTypeSet {
	return identity.NewUserTypeSet(identity.UserTypeUser)
}
