package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Federation metrics
	FederationTotal    *prometheus.CounterVec
	FederationDuration *prometheus.HistogramVec
	TokensMintedTotal  *prometheus.CounterVec

	// Sync metrics
	SyncTotal    *prometheus.CounterVec
	SyncDuration prometheus.Histogram
	SyncRetries  prometheus.Counter

	// Session metrics
	ConflictResolutionsTotal *prometheus.CounterVec
	SessionsCreatedTotal     prometheus.Counter
	LogoutsTotal             prometheus.Counter

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partnerauth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "partnerauth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		FederationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partnerauth_federation_total",
				Help: "OAuth federation attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		FederationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "partnerauth_federation_duration_seconds",
				Help:    "Duration of the token exchange and identity fetch chain",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		TokensMintedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partnerauth_bridging_tokens_minted_total",
				Help: "Bridging tokens minted by provider",
			},
			[]string{"provider"},
		),

		SyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partnerauth_user_sync_total",
				Help: "User sync calls by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "partnerauth_user_sync_duration_seconds",
				Help:    "User sync duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SyncRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "partnerauth_user_sync_retries_total",
				Help: "Upsert attempts retried after a failure",
			},
		),

		ConflictResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partnerauth_session_conflicts_total",
				Help: "Session conflict resolutions by state and action",
			},
			[]string{"state", "action"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "partnerauth_sessions_created_total",
				Help: "Modern sessions issued",
			},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "partnerauth_logouts_total",
				Help: "Logout requests",
			},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partnerauth_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FederationTotal,
		m.FederationDuration,
		m.TokensMintedTotal,
		m.SyncTotal,
		m.SyncDuration,
		m.SyncRetries,
		m.ConflictResolutionsTotal,
		m.SessionsCreatedTotal,
		m.LogoutsTotal,
		m.RateLimitedTotal,
	)

	return m
}

// The Record helpers accept a nil receiver so components can run without metrics.

// RecordFederation records one exchange + identity fetch chain
func (m *Metrics) RecordFederation(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FederationTotal.WithLabelValues(provider, outcome).Inc()
	m.FederationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTokenMinted counts a bridging token
func (m *Metrics) RecordTokenMinted(provider string) {
	if m == nil {
		return
	}
	m.TokensMintedTotal.WithLabelValues(provider).Inc()
}

// RecordSync records a user sync call
func (m *Metrics) RecordSync(source, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SyncTotal.WithLabelValues(source, outcome).Inc()
	m.SyncDuration.Observe(duration.Seconds())
}

// RecordSyncRetry counts a retried upsert attempt
func (m *Metrics) RecordSyncRetry() {
	if m == nil {
		return
	}
	m.SyncRetries.Inc()
}

// RecordConflict records a conflict resolution decision
func (m *Metrics) RecordConflict(state, action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "none"
	}
	m.ConflictResolutionsTotal.WithLabelValues(state, action).Inc()
}

// RecordSessionCreated counts an issued session
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
}

// RecordLogout counts a logout
func (m *Metrics) RecordLogout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}

// RecordRateLimited counts a rejected request
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Routes are labelled by their mux template so provider names do not explode
// label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
