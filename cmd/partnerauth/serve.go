package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/partnerauth/pkg/async"
	"github.com/platinummonkey/partnerauth/pkg/audit"
	"github.com/platinummonkey/partnerauth/pkg/authapi"
	"github.com/platinummonkey/partnerauth/pkg/bridge"
	"github.com/platinummonkey/partnerauth/pkg/config"
	"github.com/platinummonkey/partnerauth/pkg/federation"
	"github.com/platinummonkey/partnerauth/pkg/identity"
	"github.com/platinummonkey/partnerauth/pkg/middleware"
	"github.com/platinummonkey/partnerauth/pkg/observability"
	"github.com/platinummonkey/partnerauth/pkg/session"
	"github.com/platinummonkey/partnerauth/pkg/storage/postgres"
	"github.com/platinummonkey/partnerauth/pkg/usersync"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Start the public auth server and the health/metrics server.

Examples:
  # Development with in-process stores
  PARTNERAUTH_MEMORY_STORE=true PARTNERAUTH_JWT_SECRET=dev partnerauth serve

  # Production, applying pending migrations first
  partnerauth serve --migrate`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending database migrations before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	db, redisClient, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	providerCatalog, err := federation.LoadCatalog(cfg.OAuth.ProvidersFile)
	if err != nil {
		return err
	}
	providers, err := federation.BuildRegistry(ctx, federation.RegistryOptions{
		CallbackBaseURL: cfg.OAuth.CallbackBaseURL,
		Credentials: map[identity.ProviderName]federation.Credentials{
			identity.ProviderGoogle:   {ClientID: cfg.OAuth.GoogleClientID, ClientSecret: cfg.OAuth.GoogleClientSecret},
			identity.ProviderLinkedIn: {ClientID: cfg.OAuth.LinkedInClientID, ClientSecret: cfg.OAuth.LinkedInClientSecret},
		},
		Catalog:        providerCatalog,
		HTTPClient:     observability.NewHTTPClient(cfg.Server.UpstreamTimeout),
		VerifyIDTokens: cfg.OAuth.GoogleVerifyIDToken,
	})
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}

	minter, err := bridge.NewMinter(cfg.Bridge.JWTSecret)
	if err != nil {
		return err
	}
	verifier, err := bridge.NewVerifier(cfg.Bridge.JWTSecret)
	if err != nil {
		return err
	}

	var (
		userStore    usersync.Store
		sessionStore session.Store
		auditLogger  audit.Logger = audit.NewLogLogger(logger)
	)
	if db != nil {
		userStore = usersync.NewPostgresStore(db)
		dbAudit, err := audit.NewDBLogger(db)
		if err != nil {
			return err
		}
		auditPool := async.NewPool(async.Config{Name: "audit", Workers: 2, QueueSize: 512}, logger)
		auditLogger = audit.NewMultiLogger(audit.NewAsyncLogger(dbAudit, auditPool), audit.NewLogLogger(logger))
	} else {
		userStore = usersync.NewMemoryStore()
	}
	if redisClient != nil {
		sessionStore = session.NewRedisStore(redisClient)
	} else {
		sessionStore = session.NewMemoryStore(session.DefaultMemoryCapacity, cfg.Session.TTL)
	}

	sessions := session.NewManager(sessionStore, session.CookieConfig{
		Domain:            cfg.Session.CookieDomain,
		LegacyCookieName:  cfg.Session.LegacyCookieName,
		SessionCookieName: cfg.Session.SessionCookieName,
		Secure:            cfg.Session.CookieSecure,
		TTL:               cfg.Session.TTL,
	}, metrics)

	handlers, err := authapi.NewHandlers(authapi.Deps{
		Gateway:  federation.NewGateway(providers, cfg.Server.UpstreamTimeout, metrics),
		Minter:   minter,
		Sync:     usersync.NewService(userStore, usersync.WithMetrics(metrics), usersync.WithLogger(logger)),
		Sessions: sessions,
		Resolver: session.NewResolver(sessions, metrics),
		Verifier: verifier,
		Metrics:  metrics,
	}, authapi.Options{
		ClientRedirectURL:   cfg.OAuth.ClientRedirectURL,
		SecureCookies:       cfg.Session.CookieSecure,
		AllowUnverifiedSync: cfg.Bridge.SyncAllowUnverified,
	})
	if err != nil {
		return err
	}

	oauthLimiter, apiLimiter := newLimiters(cfg, redisClient)
	router := authapi.NewRouter(handlers, authapi.RouterOptions{
		Logger:             logger,
		Metrics:            metrics,
		Audit:              auditLogger,
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		OAuthLimiter:       oauthLimiter,
		APILimiter:         apiLimiter,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, server, healthServer)
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.Register("telemetry", otelProviders.Shutdown)
	if db != nil {
		shutdown.Register("postgres", func(context.Context) error { return db.Close() })
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	serveErrs := make(chan error, 2)
	for _, srv := range []*http.Server{server, healthServer} {
		go func(srv *http.Server) {
			defer observability.RecoverPanic(logger, "http server "+srv.Addr)
			logger.WithField("addr", srv.Addr).Info("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErrs <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	logger.WithFields(map[string]interface{}{
		"version":      version,
		"providers":    providers.Names(),
		"memory_store": db == nil,
		"redis":        redisClient != nil,
	}).Info("partnerauth started")

	select {
	case err := <-serveErrs:
		logger.WithError(err).Error("Server failed")
		if shutdownErr := shutdown.Shutdown(); shutdownErr != nil {
			logger.WithError(shutdownErr).Error("Shutdown after server failure")
		}
		return err
	case <-ctx.Done():
		return shutdown.Shutdown()
	}
}

// openStorage connects Postgres unless the in-memory store is selected, and
// Redis when a URL is configured. Either result may be nil.
func openStorage(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*sql.DB, *redis.Client, error) {
	var db *sql.DB
	if !cfg.Storage.MemoryStore {
		connCfg := postgres.DefaultConnectionConfig(cfg.Storage.PostgresURL)
		connCfg.MaxConns = cfg.Storage.PostgresMaxConns
		connCfg.MinConns = cfg.Storage.PostgresMinConns
		connCfg.Timeout = cfg.Storage.PostgresTimeout

		var err error
		db, err = postgres.Open(ctx, connCfg)
		if err != nil {
			return nil, nil, err
		}
		stats := postgres.Stats(db)
		logger.WithFields(map[string]interface{}{
			"open":     stats.Open,
			"idle":     stats.Idle,
			"max_open": stats.MaxOpen,
		}).Info("Connected to postgres")

		if migrateOnStart {
			if err := postgres.MigrateUp(db); err != nil {
				db.Close()
				return nil, nil, err
			}
			logger.Info("Database migrations applied")
		}
	} else {
		logger.Warn("Using in-memory user store; records are lost on restart")
	}

	if cfg.Storage.RedisURL == "" {
		return db, nil, nil
	}
	client, err := postgres.NewRedisClient(ctx, postgres.RedisConfig{
		URL:      cfg.Storage.RedisURL,
		PoolSize: cfg.Storage.RedisPoolSize,
	})
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, nil, err
	}
	return db, client, nil
}

// newLimiters shares limits across replicas when Redis is available
func newLimiters(cfg *config.Config, client *redis.Client) (oauth, api middleware.Limiter) {
	limits := middleware.DefaultRateLimitConfig()
	if cfg.HTTP.RateLimitPerMinute > 0 {
		limits.RequestsPerWindow = cfg.HTTP.RateLimitPerMinute
	}
	if client != nil {
		return middleware.NewDistributedRateLimiter(client, limits, "partnerauth:ratelimit:oauth"),
			middleware.NewDistributedRateLimiter(client, limits, "partnerauth:ratelimit:api")
	}
	return middleware.NewRateLimiter(limits), middleware.NewRateLimiter(limits)
}
