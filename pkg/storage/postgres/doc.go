// Package postgres opens the service's backing stores: the Postgres user
// database (with embedded golang-migrate migrations) and the Redis client
// shared by the session store and the distributed rate limiter.
package postgres
