package identity

import (
	"sort"
	"strings"
	"time"
)

// ProviderName identifies where an identity assertion came from
type ProviderName string

const (
	ProviderGoogle   ProviderName = "google"
	ProviderLinkedIn ProviderName = "linkedin"
	ProviderManaged  ProviderName = "managed"
)

// UserType is an account capability a local user can act as
type UserType string

const (
	UserTypeUser    UserType = "user"
	UserTypePartner UserType = "partner"
	UserTypeAdmin   UserType = "admin"
)

// Valid reports whether t is a known user type
func (t UserType) Valid() bool {
	switch t {
	case UserTypeUser, UserTypePartner, UserTypeAdmin:
		return true
	}
	return false
}

// ExternalIdentity is the profile asserted by an identity provider for one
// authentication attempt. It is never persisted as-is.
type ExternalIdentity struct {
	Provider  ProviderName `json:"provider"`
	SubjectID string       `json:"subject_id"`
	Email     string       `json:"email"`
	FirstName string       `json:"first_name,omitempty"`
	LastName  string       `json:"last_name,omitempty"`
	AvatarURL string       `json:"avatar_url,omitempty"`
}

// FullName joins first and last name
func (e *ExternalIdentity) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Profile implements Source
func (e *ExternalIdentity) Profile() Profile {
	return Profile{
		Provider:  e.Provider,
		Email:     e.Email,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		AvatarURL: e.AvatarURL,
	}
}

// BridgingToken is a signed assertion accepted by the managed-auth backend.
// It only exists in transit.
type BridgingToken struct {
	Subject   string                 `json:"sub"`
	Email     string                 `json:"email"`
	IssuedAt  time.Time              `json:"iat"`
	ExpiresAt time.Time              `json:"exp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Raw       string                 `json:"-"`
}

// LocalUserRecord is the canonical user entity, one per normalized email
type LocalUserRecord struct {
	ID                 string      `json:"id"`
	Email              string      `json:"email"`
	FirstName          string      `json:"first_name"`
	LastName           string      `json:"last_name"`
	AvatarURL          string      `json:"avatar_url,omitempty"`
	ActiveUserType     UserType    `json:"active_user_type"`
	AvailableUserTypes UserTypeSet `json:"available_user_types"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// UserTypeSet is a set of user types kept in sorted order
type UserTypeSet []UserType

// NewUserTypeSet builds a deduplicated, sorted set
func NewUserTypeSet(types ...UserType) UserTypeSet {
	seen := make(map[UserType]struct{}, len(types))
	out := make(UserTypeSet, 0, len(types))
	for _, t := range types {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether t is in the set
func (s UserTypeSet) Contains(t UserType) bool {
	for _, v := range s {
		if v == t {
			return true
		}
	}
	return false
}

// Union returns a set holding every type of s and other
func (s UserTypeSet) Union(other UserTypeSet) UserTypeSet {
	all := make([]UserType, 0, len(s)+len(other))
	all = append(all, s...)
	all = append(all, other...)
	return NewUserTypeSet(all...)
}

// Strings returns the set as plain strings for storage
func (s UserTypeSet) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

// UserTypeSetFromStrings is the inverse of Strings
func UserTypeSetFromStrings(values []string) UserTypeSet {
	types := make([]UserType, 0, len(values))
	for _, v := range values {
		types = append(types, UserType(v))
	}
	return NewUserTypeSet(types...)
}

// ManagedSessionUser is the user object of a managed-auth backend session
type ManagedSessionUser struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
	AppMetadata      map[string]interface{} `json:"app_metadata,omitempty"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at,omitempty"`
}

// Profile implements Source. Name fields fall back to splitting full_name
// or name when first_name/last_name are not present.
func (u *ManagedSessionUser) Profile() Profile {
	p := Profile{
		Provider:  ProviderManaged,
		Email:     u.Email,
		FirstName: metadataString(u.UserMetadata, "first_name", "given_name"),
		LastName:  metadataString(u.UserMetadata, "last_name", "family_name"),
		AvatarURL: metadataString(u.UserMetadata, "avatar_url", "picture"),
	}

	if p.FirstName == "" && p.LastName == "" {
		full := metadataString(u.UserMetadata, "full_name", "name")
		if full != "" {
			parts := strings.Fields(full)
			p.FirstName = parts[0]
			p.LastName = strings.Join(parts[1:], " ")
		}
	}

	if provider := metadataString(u.AppMetadata, "provider"); provider != "" {
		p.Provider = ProviderName(provider)
	}

	return p
}

func metadataString(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if str, ok := val.(string); ok && strings.TrimSpace(str) != "" {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

// Profile is the provider-neutral view used by user sync
type Profile struct {
	Provider  ProviderName
	Email     string
	FirstName string
	LastName  string
	AvatarURL string
}

// Source is anything user sync can build a profile from
type Source interface {
	Profile() Profile
}

// SessionConflictState is derived per request from the cookies present
type SessionConflictState struct {
	LegacyCookiePresent bool
	ModernCookiePresent bool
	Domain              string
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
