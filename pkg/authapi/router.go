package authapi

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/partnerauth/pkg/audit"
	"github.com/platinummonkey/partnerauth/pkg/httputil"
	"github.com/platinummonkey/partnerauth/pkg/middleware"
	"github.com/platinummonkey/partnerauth/pkg/observability"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 64 * 1024

// RouterOptions configure the cross-cutting middleware
type RouterOptions struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Audit   audit.Logger

	CORSAllowedOrigins []string

	// OAuthLimiter guards /auth/*, APILimiter guards /api/auth/*. nil disables.
	OAuthLimiter middleware.Limiter
	APILimiter   middleware.Limiter
}

// NewRouter assembles the public handler
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.Audit == nil {
		opts.Audit = audit.NopLogger{}
	}

	r := mux.NewRouter()
	r.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware(opts.Logger),
		withAudit(opts.Audit),
	)
	if opts.Metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	authRouter := r.PathPrefix("/auth").Subrouter()
	if opts.OAuthLimiter != nil {
		authRouter.Use(middleware.RateLimit(opts.OAuthLimiter, "oauth", opts.Metrics))
	}

	apiRouter := r.PathPrefix("/api/auth").Subrouter()
	apiRouter.Use(
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
		h.deps.Sessions.Middleware,
	)
	if opts.APILimiter != nil {
		apiRouter.Use(middleware.RateLimit(opts.APILimiter, "api", opts.Metrics))
	}

	h.RegisterRoutes(authRouter, apiRouter)

	outer := []func(http.Handler) http.Handler{observability.TracingMiddleware("partnerauth")}
	if len(opts.CORSAllowedOrigins) > 0 {
		outer = append(outer, cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httputil.RequestIDHeader},
			ExposedHeaders:   []string{httputil.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	return httputil.Chain(outer...)(r)
}

func withAudit(logger audit.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
		})
	}
}
