package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryCapacity bounds the in-memory store
const DefaultMemoryCapacity = 10000

// MemoryStore keeps sessions in an expiring LRU. Entries older than the
// cache TTL are evicted; shorter session lifetimes are checked on Get.
type MemoryStore struct {
	cache *expirable.LRU[string, *Session]
	now   func() time.Time
}

// NewMemoryStore creates a store holding up to capacity sessions for at most ttl
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, *Session](capacity, nil, ttl),
		now:   time.Now,
	}
}

// Save implements Store
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	cp := *sess
	s.cache.Add(sess.ID, &cp)
	return nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok || !sess.Valid(s.now()) {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// Delete implements Store
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

// Len returns the number of cached sessions
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
