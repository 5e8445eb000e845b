package usersync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/partnerauth/pkg/identity"
)

// upsertQuery relies on the unique index users_email_lower_idx. Empty
// incoming fields keep the stored value, the type columns are only written
// on insert, and updated_at moves only when a profile field changes.
const upsertQuery = `
INSERT INTO users (id, email, first_name, last_name, avatar_url, active_user_type, available_user_types, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT ((lower(email))) DO UPDATE SET
	first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
	last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
	avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
	updated_at = CASE
		WHEN (COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name),
		      COALESCE(NULLIF(EXCLUDED.last_name, ''), users.last_name),
		      COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url))
		     IS DISTINCT FROM (users.first_name, users.last_name, users.avatar_url)
		THEN EXCLUDED.updated_at
		ELSE users.updated_at
	END
RETURNING id, email, first_name, last_name, avatar_url, active_user_type, available_user_types, created_at, updated_at, (xmax = 0) AS inserted`

const selectByEmailQuery = `
SELECT id, email, first_name, last_name, avatar_url, active_user_type, available_user_types, created_at, updated_at
FROM users
WHERE lower(email) = lower($1)`

// PostgresStore is the Store backed by the users table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an open database
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert implements Store
func (s *PostgresStore) Upsert(ctx context.Context, profile identity.Profile, now time.Time) (*identity.LocalUserRecord, bool, error) {
	var (
		rec      identity.LocalUserRecord
		active   string
		types    []string
		inserted bool
	)

	err := s.db.QueryRowContext(ctx, upsertQuery,
		uuid.NewString(),
		profile.Email,
		profile.FirstName,
		profile.LastName,
		profile.AvatarURL,
		string(identity.UserTypeUser),
		pq.Array(newRecordTypes().Strings()),
		now,
	).Scan(
		&rec.ID,
		&rec.Email,
		&rec.FirstName,
		&rec.LastName,
		&rec.AvatarURL,
		&active,
		pq.Array(&types),
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}

	rec.ActiveUserType = identity.UserType(active)
	rec.AvailableUserTypes = identity.UserTypeSetFromStrings(types)
	return &rec, inserted, nil
}

// GetByEmail implements Store
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*identity.LocalUserRecord, error) {
	var (
		rec    identity.LocalUserRecord
		active string
		types  []string
	)

	err := s.db.QueryRowContext(ctx, selectByEmailQuery, identity.NormalizeEmail(email)).Scan(
		&rec.ID,
		&rec.Email,
		&rec.FirstName,
		&rec.LastName,
		&rec.AvatarURL,
		&active,
		pq.Array(&types),
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rec.ActiveUserType = identity.UserType(active)
	rec.AvailableUserTypes = identity.UserTypeSetFromStrings(types)
	return &rec, nil
}
