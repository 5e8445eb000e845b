package usersync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/partnerauth/pkg/identity"
)

// MemoryStore is a process-local Store with the same merge rules as the
// Postgres store
type MemoryStore struct {
	mu      sync.Mutex
	byEmail map[string]*identity.LocalUserRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]*identity.LocalUserRecord)}
}

// Upsert implements Store
func (s *MemoryStore) Upsert(ctx context.Context, profile identity.Profile, now time.Time) (*identity.LocalUserRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byEmail[profile.Email]
	if !ok {
		rec = &identity.LocalUserRecord{
			ID:                 uuid.NewString(),
			Email:              profile.Email,
			FirstName:          profile.FirstName,
			LastName:           profile.LastName,
			AvatarURL:          profile.AvatarURL,
			ActiveUserType:     identity.UserTypeUser,
			AvailableUserTypes: newRecordTypes(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		s.byEmail[profile.Email] = rec
		return copyRecord(rec), true, nil
	}

	if mergeProfile(rec, profile) {
		rec.UpdatedAt = now
	}
	return copyRecord(rec), false, nil
}

// GetByEmail implements Store
func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*identity.LocalUserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// GrantUserType adds a capability. Used by tests and by tooling that seeds
// partner accounts; logins never call it.
func (s *MemoryStore) GrantUserType(email string, t identity.UserType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byEmail[identity.NormalizeEmail(email)]; ok {
		rec.AvailableUserTypes = rec.AvailableUserTypes.Union(identity.NewUserTypeSet(t))
	}
}

// Len returns the number of records
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}

// mergeProfile copies non-empty profile fields and reports whether anything changed
func mergeProfile(rec *identity.LocalUserRecord, p identity.Profile) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&rec.FirstName, p.FirstName)
	set(&rec.LastName, p.LastName)
	set(&rec.AvatarURL, p.AvatarURL)
	return changed
}

func copyRecord(rec *identity.LocalUserRecord) *identity.LocalUserRecord {
	out := *rec
	out.AvailableUserTypes = append(identity.UserTypeSet(nil), rec.AvailableUserTypes...)
	return &out
}
