package clientauth

import (
	"sync"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/identity"
)

// EventType names a transition of the auth state
type EventType string

const (
	EventSignedIn           EventType = "SIGNED_IN"
	EventSignedOut          EventType = "SIGNED_OUT"
	EventTokenRefreshed     EventType = "TOKEN_REFRESHED"
	EventPasswordRecovery   EventType = "PASSWORD_RECOVERY"
	EventConnectionLost     EventType = "CONNECTION_LOST"
	EventConnectionRestored EventType = "CONNECTION_RESTORED"
)

// AuthSession is the managed-auth session held by the client
type AuthSession struct {
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthEvent drives the machine. Session, User and Err are read depending on
// Type.
type AuthEvent struct {
	Type    EventType
	Session *AuthSession
	User    *identity.ManagedSessionUser
	Err     error
}

// Snapshot is the client auth state. Snapshots are values; the pointers they
// hold must be treated as read-only.
type Snapshot struct {
	Session     *AuthSession
	User        *identity.ManagedSessionUser
	IsConnected bool
	Err         error
	Recovering  bool
}

// SignedIn reports whether a session is held
func (s Snapshot) SignedIn() bool {
	return s.Session != nil
}

// InitialSnapshot is the state before any event
func InitialSnapshot() Snapshot {
	return Snapshot{IsConnected: true}
}

// Reduce returns the state after e. Unknown event types leave s unchanged.
func Reduce(s Snapshot, e AuthEvent) Snapshot {
	switch e.Type {
	case EventSignedIn:
		s.Session = e.Session
		s.User = e.User
		s.Err = nil
		s.Recovering = false
	case EventSignedOut:
		s.Session = nil
		s.User = nil
		s.Err = nil
		s.Recovering = false
	case EventTokenRefreshed:
		// a refresh without a session is a late callback after sign-out
		if s.Session == nil {
			return s
		}
		s.Session = e.Session
		if e.User != nil {
			s.User = e.User
		}
	case EventPasswordRecovery:
		if e.Session != nil {
			s.Session = e.Session
		}
		if e.User != nil {
			s.User = e.User
		}
		s.Recovering = true
	case EventConnectionLost:
		s.IsConnected = false
		s.Err = e.Err
	case EventConnectionRestored:
		s.IsConnected = true
		s.Err = nil
	}
	return s
}

// Machine serializes dispatch and fans new snapshots out to subscribers
type Machine struct {
	mu     sync.Mutex
	state  Snapshot
	subs   map[int]func(Snapshot)
	nextID int
}

// NewMachine starts from InitialSnapshot
func NewMachine() *Machine {
	return &Machine{
		state: InitialSnapshot(),
		subs:  make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dispatch applies e and notifies subscribers in subscription order. It
// returns the new snapshot.
func (m *Machine) Dispatch(e AuthEvent) Snapshot {
	m.mu.Lock()
	m.state = Reduce(m.state, e)
	next := m.state
	subs := make([]func(Snapshot), 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Subscribe registers fn and returns a function removing it
func (m *Machine) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
