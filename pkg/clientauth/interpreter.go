package clientauth

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/observability"
	"github.com/platinummonkey/partnerauth/pkg/usersync"
)

// ErrAlreadyProcessed is returned when a URL was dispatched before
var ErrAlreadyProcessed = errors.New("url already processed")

// History rewrites the current entry without navigating
type History interface {
	Replace(u *url.URL)
}

// Navigator moves to another page, optionally with a one-shot marker
type Navigator interface {
	Navigate(path string, marker Marker)
}

// Notifier shows toasts
type Notifier interface {
	Error(message string)
	Success(message string)
}

// SessionExchanger trades a bridging token for a managed-auth session
type SessionExchanger interface {
	ExchangeBridgingToken(ctx context.Context, token string) (*AuthSession, *identity.ManagedSessionUser, error)
}

// Routes are the in-app destinations the interpreter navigates to
type Routes struct {
	Home          string
	ResetPassword string
}

// DefaultRoutes are used for empty fields of Routes
var DefaultRoutes = Routes{Home: "/", ResetPassword: "/reset-password"}

// Deps collects the side-effect ports of the interpreter
type Deps struct {
	History   History
	Navigator Navigator
	Notifier  Notifier
	Syncer    Syncer
	Exchanger SessionExchanger
	// Machine is optional; when set it receives sign-in, recovery and
	// connectivity transitions
	Machine *Machine
	Logger  *observability.Logger
}

// Interpreter dispatches auth redirects. One Interpreter lives as long as
// the page that owns it.
type Interpreter struct {
	deps   Deps
	routes Routes

	mu        sync.Mutex
	processed map[string]struct{}
	budget    usersync.RetryBudget
}

// NewInterpreter creates an interpreter
func NewInterpreter(deps Deps, routes Routes) *Interpreter {
	if routes.Home == "" {
		routes.Home = DefaultRoutes.Home
	}
	if routes.ResetPassword == "" {
		routes.ResetPassword = DefaultRoutes.ResetPassword
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.WarnLevel, nil)
	}
	return &Interpreter{
		deps:      deps,
		routes:    routes,
		processed: make(map[string]struct{}),
	}
}

// Budget returns the retry budget currently held
func (i *Interpreter) Budget() usersync.RetryBudget {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.budget
}

// Process classifies u and performs its action. A URL is dispatched at most
// once. When ctx ends while a network call is in flight the result is
// dropped and ctx.Err() returned.
func (i *Interpreter) Process(ctx context.Context, u *url.URL, view SessionView) (Event, error) {
	event := Classify(u, view)

	key := u.String()
	i.mu.Lock()
	if _, seen := i.processed[key]; seen {
		i.mu.Unlock()
		return event, ErrAlreadyProcessed
	}
	i.processed[key] = struct{}{}
	i.mu.Unlock()

	stripped := Strip(u)
	logger := i.deps.Logger.WithField("auth_event", string(event.Kind))

	switch event.Kind {
	case KindMagicLink:
		i.deps.History.Replace(stripped)
		i.deps.Navigator.Navigate(i.routes.Home, MarkerMagicLink)
	case KindEmailConfirmation:
		i.deps.History.Replace(stripped)
		i.deps.Navigator.Navigate(i.routes.Home, MarkerConfirmed)
	case KindPasswordRecovery:
		i.deps.History.Replace(stripped)
		i.dispatch(AuthEvent{Type: EventPasswordRecovery, Session: view.Session, User: view.User})
		i.deps.Navigator.Navigate(i.routes.ResetPassword, MarkerNone)
	case KindOAuthError:
		logger.WithField("error_code", event.ErrorCode).Info("OAuth redirect carried an error")
		i.deps.Notifier.Error(Message(event.ErrorCode))
		i.deps.History.Replace(stripped)
	case KindOAuthBridge:
		return event, i.bridge(ctx, event.Token, stripped, logger)
	case KindPlainSignIn:
		// tokens left in the fragment would replay this sign-in on refresh
		if stripped.String() != u.String() {
			i.deps.History.Replace(stripped)
		}
		return event, i.signIn(ctx, view.Session, view.User, logger)
	}
	return event, nil
}

func (i *Interpreter) bridge(ctx context.Context, token string, stripped *url.URL, logger *observability.Logger) error {
	sess, user, err := i.deps.Exchanger.ExchangeBridgingToken(ctx, token)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	i.deps.History.Replace(stripped)
	if err != nil {
		logger.WithError(err).Warn("Bridging token exchange failed")
		i.deps.Notifier.Error(Message("login_failed"))
		return err
	}
	return i.signIn(ctx, sess, user, logger)
}

func (i *Interpreter) signIn(ctx context.Context, sess *AuthSession, user *identity.ManagedSessionUser, logger *observability.Logger) error {
	outcome, err := i.deps.Syncer.Sync(ctx, user, i.Budget())
	if ctx.Err() != nil {
		return ctx.Err()
	}

	i.mu.Lock()
	if outcome != nil {
		i.budget = outcome.Budget
	}
	budget := i.budget
	i.mu.Unlock()

	if err != nil {
		logger.WithError(err).WithField("failures", budget.Failures).Warn("User sync failed")
		if (outcome != nil && outcome.Surface) || budget.ShouldSurface() {
			i.deps.Notifier.Error(MessageConnectivity)
			i.dispatch(AuthEvent{Type: EventConnectionLost, Err: err})
		}
		return err
	}

	i.dispatch(AuthEvent{Type: EventConnectionRestored})
	i.dispatch(AuthEvent{Type: EventSignedIn, Session: sess, User: user})
	i.deps.Navigator.Navigate(i.routes.Home, MarkerNone)
	return nil
}

func (i *Interpreter) dispatch(e AuthEvent) {
	if i.deps.Machine != nil {
		i.deps.Machine.Dispatch(e)
	}
}
