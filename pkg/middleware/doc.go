// Package middleware provides request rate limiting for the auth endpoints.
//
// Two limiters share the Limiter interface: RateLimiter keeps a token bucket
// per client address in process, DistributedRateLimiter counts requests per
// fixed window in Redis so every replica sees the same budget.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "partnerauth:ratelimit")
//	router.Use(middleware.RateLimit(limiter, "callback", metrics))
//
// Limiter errors fail open: the request is served and the error logged.
package middleware
