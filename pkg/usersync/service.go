package usersync

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/platinummonkey/partnerauth/pkg/contextkeys"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
)

const (
	// DefaultAttempts is the number of upsert attempts per call
	DefaultAttempts = 2

	defaultBackoff = 100 * time.Millisecond
)

// Result is the outcome of one sync call. Budget is set on failure too.
type Result struct {
	Record  *identity.LocalUserRecord
	Created bool
	Budget  RetryBudget
}

// Service upserts local user records
type Service struct {
	store    Store
	attempts int
	backoff  time.Duration
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records sync outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBackoff sets the pause between upsert attempts
func WithBackoff(d time.Duration) Option {
	return func(s *Service) { s.backoff = d }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a sync service on store
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		attempts: DefaultAttempts,
		backoff:  defaultBackoff,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncUser creates or refreshes the record for the source's email.
//
// On failure the returned Result is non-nil and carries the updated budget;
// the error is ErrInvalidEmail for bad input (budget untouched) or a
// SyncError once every attempt failed.
func (s *Service) SyncUser(ctx context.Context, src identity.Source, budget RetryBudget) (*Result, error) {
	start := time.Now()
	profile := src.Profile()
	source := string(profile.Provider)

	email, err := ValidateEmail(profile.Email)
	if err != nil {
		s.metrics.RecordSync(source, "invalid", time.Since(start))
		return &Result{Budget: budget.normalized()}, err
	}
	profile.Email = email

	logger := s.loggerFor(ctx).WithField("source", source)

	var lastErr error
	attempts := 0
	for attempts < s.attempts {
		if attempts > 0 {
			s.metrics.RecordSyncRetry()
			if err := sleepCtx(ctx, s.backoff); err != nil {
				lastErr = err
				break
			}
		}
		attempts++

		rec, created, err := s.store.Upsert(ctx, profile, s.now().UTC().Truncate(time.Microsecond))
		if err == nil {
			outcome := "updated"
			if created {
				outcome = "created"
			}
			s.metrics.RecordSync(source, outcome, time.Since(start))
			logger.WithField("user_id", rec.ID).WithField("created", created).Debug("User synced")
			return &Result{Record: rec, Created: created, Budget: budget.Reset()}, nil
		}

		lastErr = err
		logger.WithError(err).WithField("attempt", attempts).Warn("User upsert failed")
		if ctx.Err() != nil {
			break
		}
	}

	next := budget.RecordFailure()
	s.metrics.RecordSync(source, "failed", time.Since(start))
	logger.WithField("failures", next.Failures).WithField("surface", next.ShouldSurface()).Error("User sync failed")
	return &Result{Budget: next}, &identity.SyncError{Email: email, Attempts: attempts, Err: lastErr}
}

func (s *Service) loggerFor(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); !ok && s.logger != nil {
		return s.logger
	}
	return observability.FromContext(ctx)
}

// ValidateEmail normalizes email and rejects values that are not a bare address
func ValidateEmail(email string) (string, error) {
	normalized := identity.NormalizeEmail(email)
	if normalized == "" {
		return "", fmt.Errorf("%w: empty", identity.ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", fmt.Errorf("%w: %q", identity.ErrInvalidEmail, normalized)
	}
	return normalized, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
