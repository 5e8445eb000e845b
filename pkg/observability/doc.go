// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for the partnerauth service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("provider", "google").Info("callback handled")
//
// Credential-bearing keys (jwt, code, state, cookie and friends) are
// redacted by the handler, so log error codes under "error_code".
//
// # Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordFederation("linkedin", "success", time.Since(start))
//
// Recorders accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
package observability
